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
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/jiaxincao/modelfactory/pkg/consts"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

// Runner is the trigger engine's sweep loop: every enabled trigger is
// evaluated once per pass, failures accrue toward a per-trigger budget, and
// a trigger that exhausts its budget is auto-disabled (spec.md §4.4).
type Runner struct {
	Deps Deps
}

// SweepOnce evaluates every enabled trigger once, continuing past one
// trigger's error rather than aborting the whole pass.
func (r *Runner) SweepOnce(ctx context.Context) error {
	records, err := r.Deps.Store.ListTriggers(ctx)
	if err != nil {
		return err
	}

	var errs *multierror.Error
	for _, rec := range records {
		if !rec.Enabled {
			continue
		}
		if err := r.runOne(ctx, rec); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("trigger %s: %w", rec.ID, err))
		}
	}
	return errs.ErrorOrNil()
}

func (r *Runner) runOne(ctx context.Context, rec store.TriggerRecord) error {
	t, err := New(rec, r.Deps)
	if err != nil {
		return err
	}

	execErr := t.Exec(ctx)

	// Re-fetch: Exec may have persisted its own action-metadata update via
	// updateActionMetadata, and this write must not clobber that.
	latest, err := r.Deps.Store.GetTrigger(ctx, rec.ID)
	if err != nil {
		return err
	}

	if execErr != nil {
		latest.LastFailureCount++
		if latest.LastFailureCount >= consts.TriggerFailureLimit {
			latest.Enabled = false
		}
	} else if latest.LastFailureCount != 0 {
		latest.LastFailureCount = 0
	} else {
		return nil
	}

	latest.UpdateTimestamp = time.Now().UTC()
	if err := r.Deps.Store.UpsertTrigger(ctx, *latest); err != nil {
		return err
	}
	return execErr
}
