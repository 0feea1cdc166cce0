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

package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jiaxincao/modelfactory/pkg/consts"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

// ChildFailedError is returned by Join when the child job failed; it
// carries the child's identity so the parent can propagate it.
type ChildFailedError struct {
	JobID     string
	Exception string
}

func (e *ChildFailedError) Error() string {
	return fmt.Sprintf("child job %s failed: %s", e.JobID, e.Exception)
}

// Spawn implements operator-initiated child job creation (spec.md §4.3):
// the child inherits pipeline_name, docker image coordinates, owner, tags,
// ttl_after_finished and notification_channel from the parent, and falls
// back to the child operator's own resource defaults.
func (m *Manager) Spawn(ctx context.Context, parent *store.Job, operatorID, inputJSON string) (*store.Job, error) {
	req := CreateRequest{
		PipelineName:        parent.PipelineName,
		OperatorID:          operatorID,
		PipelineParams:      inputJSON,
		Owner:               parent.Owner,
		Tags:                append([]string{}, parent.Tags...),
		DockerImageRepo:     parent.DockerImageRepo,
		DockerImageTag:      parent.DockerImageTag,
		ExecutionMode:       parent.ExecutionMode,
		TTLAfterFinished:    parent.TTLAfterFinished,
		ParentJobID:         parent.JobID,
		NotificationChannel: parent.NotificationChannel,
	}
	return m.Create(ctx, req)
}

// Join polls the child job every 60 s until it reaches a terminal status.
// On success it returns the child's decoded output field; on failure it
// returns a ChildFailedError carrying the child's identity. In local mode
// the child already ran synchronously inside Create, so Join simply reads
// the output without polling.
func (m *Manager) Join(ctx context.Context, childJobID string) (interface{}, error) {
	for {
		child, err := m.Store.GetJob(ctx, childJobID)
		if err != nil {
			return nil, err
		}

		switch child.Status {
		case store.JobSucceeded:
			return decodeOutput(child.Output)
		case store.JobFailed:
			return nil, &ChildFailedError{JobID: child.JobID, Exception: child.Exception}
		case store.JobDeleted:
			return nil, fmt.Errorf("child job %s was deleted before completion", childJobID)
		}

		if child.ExecutionMode == consts.ExecutionModeLocal {
			return nil, fmt.Errorf("local-mode child job %s did not complete synchronously", childJobID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(consts.ChildJobPollIntervalSeconds) * time.Second):
		}
	}
}

func decodeOutput(raw *string) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(*raw), &v); err != nil {
		return nil, fmt.Errorf("decode child output: %w", err)
	}
	return v, nil
}
