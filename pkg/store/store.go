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

package store

import "context"

// Store is the tracking store contract (spec.md §4.1). Every method is
// blocking I/O (spec.md §5): callers are expected to run it off whatever
// goroutine can afford to wait.
type Store interface {
	// CreateJob inserts fields under job_id; fails with AlreadyExistsError
	// if a document already exists at that key. Tags are deduplicated and
	// sorted before insert.
	CreateJob(ctx context.Context, job Job) error
	// UpdateJobFields partially upserts fields onto an existing job
	// document; never clears fields absent from fields.
	UpdateJobFields(ctx context.Context, jobID string, fields map[string]interface{}) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	FindJobs(ctx context.Context, filter Filter, projection Projection) ([]Job, error)
	AppendJobEvent(ctx context.Context, jobID string, event Event) error
	TagJob(ctx context.Context, jobID, tag string) error
	UntagJob(ctx context.Context, jobID, tag string) error

	CreateModel(ctx context.Context, model Model) error
	GetModel(ctx context.Context, modelID string) (*Model, error)
	FindModels(ctx context.Context, filter Filter) ([]Model, error)
	DeleteModel(ctx context.Context, modelID string) error
	TagModel(ctx context.Context, modelID, tag string) error
	UntagModel(ctx context.Context, modelID, tag string) error
	AddMetric(ctx context.Context, modelID, key string, value float64, ts int64) error

	// Promote verifies modelID exists, then upserts the production pointer
	// for modelName and appends a "promote" event.
	Promote(ctx context.Context, modelName, modelID string) error
	GetProductionPointer(ctx context.Context, modelName string) (*ProductionPointer, error)
	ListProductionPointers(ctx context.Context) ([]ProductionPointer, error)
	AppendProductionEvent(ctx context.Context, modelName string, event Event) error

	UpsertTrigger(ctx context.Context, trigger TriggerRecord) error
	GetTrigger(ctx context.Context, name string) (*TriggerRecord, error)
	ListTriggers(ctx context.Context) ([]TriggerRecord, error)
	DeleteTrigger(ctx context.Context, name string) error
}
