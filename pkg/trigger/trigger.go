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

// Package trigger is the trigger engine (spec.md §4.4): a tagged variant
// over {Cron, Backfill, ActiveTagJob, Rollout} satisfying a common
// capability set, evaluated on a periodic sweep with per-trigger action
// metadata, failure budgets, and auto-disable.
package trigger

import "context"

// Trigger is the capability set every variant satisfies (spec.md §9
// "polymorphism over triggers").
type Trigger interface {
	Name() string
	BuildImage(ctx context.Context) error
	Exec(ctx context.Context) error
}

// ConditionTrigger is the refinement exposing readiness; Exec for these
// variants is is_ready() ? do_exec() : noop, implemented once in execCondition
// rather than duplicated per variant.
type ConditionTrigger interface {
	Trigger
	IsReady(ctx context.Context) (bool, error)
	DoExec(ctx context.Context) error
}

// execCondition implements the shared ConditionTrigger.Exec behavior.
func execCondition(ctx context.Context, t ConditionTrigger) error {
	ready, err := t.IsReady(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return nil
	}
	return t.DoExec(ctx)
}

// ExtraTags returns the mandatory tag pair every trigger-created job
// carries: "trigger_job" and the trigger's own name.
func ExtraTags(name string) []string {
	return []string{"trigger_job", name}
}
