// Copyright 2024 The Model Factory Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package trigger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jiaxincao/modelfactory/pkg/cluster"
	"github.com/jiaxincao/modelfactory/pkg/job"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

// Deps is everything a concrete trigger needs beyond its own parameters: the
// tracking store, the job lifecycle manager it schedules work through, and
// the cluster proxy for deployment restarts.
type Deps struct {
	Store     store.Store
	Jobs      *job.Manager
	Cluster   cluster.Cluster
	Namespace string
}

// Base carries the trigger's backing record and lazily-decoded action
// metadata; every concrete variant embeds it.
type Base struct {
	Record store.TriggerRecord
	Deps   Deps
	meta   map[string]interface{}
}

func (b *Base) Name() string { return b.Record.ID }

// BuildImage is a no-op by default; none of the four concrete variants
// build their own image ahead of execution (spec.md §4.4).
func (b *Base) BuildImage(ctx context.Context) error { return nil }

func (b *Base) ensureMeta() map[string]interface{} {
	if b.meta != nil {
		return b.meta
	}
	b.meta = map[string]interface{}{}
	if b.Record.ActionMetadataJSON != "" {
		_ = json.Unmarshal([]byte(b.Record.ActionMetadataJSON), &b.meta)
	}
	return b.meta
}

func (b *Base) metaString(key string) string {
	if v, ok := b.ensureMeta()[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (b *Base) metaTime(key string) (time.Time, bool) {
	s := b.metaString(key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// updateActionMetadata merges updates into the trigger's action metadata
// and persists the whole record, matching TriggerManager.update_action_metadata
// in the Python original: the full record round-trips through the store on
// every action-metadata write.
func (b *Base) updateActionMetadata(ctx context.Context, updates map[string]interface{}) error {
	meta := b.ensureMeta()
	for k, v := range updates {
		meta[k] = v
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	b.Record.ActionMetadataJSON = string(encoded)
	b.Record.UpdateTimestamp = time.Now().UTC()
	return b.Deps.Store.UpsertTrigger(ctx, b.Record)
}
