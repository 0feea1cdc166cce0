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

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests, by `mf dev container`, and
// by daemons started with no mongo_db_endpoint configured. It holds one map per collection
// guarded by a single mutex; no attempt is made at concurrent-writer
// correctness beyond that, matching spec.md §5's single-writer-per-sweeper
// assumption.
type Memory struct {
	mu          sync.Mutex
	jobs        map[string]Job
	models      map[string]Model
	pointers    map[string]ProductionPointer
	triggers    map[string]TriggerRecord
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:     map[string]Job{},
		models:   map[string]Model{},
		pointers: map[string]ProductionPointer{},
		triggers: map[string]TriggerRecord{},
	}
}

func (m *Memory) CreateJob(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.JobID]; ok {
		return &AlreadyExistsError{Collection: "jobs", ID: job.JobID}
	}
	job.NormalizeTags()
	m.jobs[job.JobID] = job
	return nil
}

func (m *Memory) UpdateJobFields(_ context.Context, jobID string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return &NotFoundError{Collection: "jobs", ID: jobID}
	}
	applyJobFields(&job, fields)
	m.jobs[jobID] = job
	return nil
}

func (m *Memory) GetJob(_ context.Context, jobID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, &NotFoundError{Collection: "jobs", ID: jobID}
	}
	return &job, nil
}

func (m *Memory) FindJobs(_ context.Context, filter Filter, projection Projection) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, j := range m.jobs {
		if matchJob(&j, filter) {
			out = append(out, applyProjection(j, projection))
		}
	}
	return out, nil
}

func (m *Memory) AppendJobEvent(_ context.Context, jobID string, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return &NotFoundError{Collection: "jobs", ID: jobID}
	}
	event.Timestamp = nowIfZero(event.Timestamp)
	job.Events = append(job.Events, event)
	m.jobs[jobID] = job
	return nil
}

func (m *Memory) TagJob(_ context.Context, jobID, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return &NotFoundError{Collection: "jobs", ID: jobID}
	}
	job.Tags = append(job.Tags, tag)
	job.NormalizeTags()
	m.jobs[jobID] = job
	return nil
}

func (m *Memory) UntagJob(_ context.Context, jobID, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return &NotFoundError{Collection: "jobs", ID: jobID}
	}
	job.Tags = removeString(job.Tags, tag)
	m.jobs[jobID] = job
	return nil
}

func (m *Memory) CreateModel(_ context.Context, model Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	model.NormalizeTags()
	m.models[model.ID] = model
	return nil
}

func (m *Memory) GetModel(_ context.Context, modelID string) (*Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	model, ok := m.models[modelID]
	if !ok {
		return nil, &NotFoundError{Collection: "models", ID: modelID}
	}
	return &model, nil
}

func (m *Memory) FindModels(_ context.Context, filter Filter) ([]Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Model
	for _, mo := range m.models {
		if matchModel(&mo, filter) {
			out = append(out, mo)
		}
	}
	return out, nil
}

func (m *Memory) DeleteModel(_ context.Context, modelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.models[modelID]; !ok {
		return &NotFoundError{Collection: "models", ID: modelID}
	}
	delete(m.models, modelID)
	return nil
}

func (m *Memory) TagModel(_ context.Context, modelID, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	model, ok := m.models[modelID]
	if !ok {
		return &NotFoundError{Collection: "models", ID: modelID}
	}
	model.Tags = append(model.Tags, tag)
	model.NormalizeTags()
	m.models[modelID] = model
	return nil
}

func (m *Memory) UntagModel(_ context.Context, modelID, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	model, ok := m.models[modelID]
	if !ok {
		return &NotFoundError{Collection: "models", ID: modelID}
	}
	model.Tags = removeString(model.Tags, tag)
	m.models[modelID] = model
	return nil
}

func (m *Memory) AddMetric(_ context.Context, modelID, key string, value float64, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	model, ok := m.models[modelID]
	if !ok {
		return &NotFoundError{Collection: "models", ID: modelID}
	}
	if model.Metric == nil {
		model.Metric = map[string][]MetricPoint{}
	}
	model.Metric[key] = append(model.Metric[key], MetricPoint{Value: value, Timestamp: time.Unix(ts, 0).UTC()})
	m.models[modelID] = model
	return nil
}

func (m *Memory) Promote(_ context.Context, modelName, modelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.models[modelID]; !ok {
		return &NotFoundError{Collection: "models", ID: modelID}
	}
	ptr, ok := m.pointers[modelName]
	if !ok {
		ptr = ProductionPointer{ID: modelName}
	}
	ptr.ModelID = modelID
	ptr.Events = append(ptr.Events, Event{Timestamp: time.Now().UTC(), Type: "promote"})
	m.pointers[modelName] = ptr
	return nil
}

func (m *Memory) GetProductionPointer(_ context.Context, modelName string) (*ProductionPointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ptr, ok := m.pointers[modelName]
	if !ok {
		return nil, &NotFoundError{Collection: "production_models", ID: modelName}
	}
	return &ptr, nil
}

func (m *Memory) ListProductionPointers(_ context.Context) ([]ProductionPointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProductionPointer, 0, len(m.pointers))
	for _, p := range m.pointers {
		out = append(out, p)
	}
	return out, nil
}

func (m *Memory) AppendProductionEvent(_ context.Context, modelName string, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ptr, ok := m.pointers[modelName]
	if !ok {
		return &NotFoundError{Collection: "production_models", ID: modelName}
	}
	event.Timestamp = nowIfZero(event.Timestamp)
	ptr.Events = append(ptr.Events, event)
	m.pointers[modelName] = ptr
	return nil
}

func (m *Memory) UpsertTrigger(_ context.Context, trigger TriggerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers[trigger.ID] = trigger
	return nil
}

func (m *Memory) GetTrigger(_ context.Context, name string) (*TriggerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.triggers[name]
	if !ok {
		return nil, &NotFoundError{Collection: "triggers", ID: name}
	}
	return &t, nil
}

func (m *Memory) ListTriggers(_ context.Context) ([]TriggerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TriggerRecord, 0, len(m.triggers))
	for _, t := range m.triggers {
		out = append(out, t)
	}
	return out, nil
}

func (m *Memory) DeleteTrigger(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.triggers[name]; !ok {
		return &NotFoundError{Collection: "triggers", ID: name}
	}
	delete(m.triggers, name)
	return nil
}

func matchModel(mo *Model, f Filter) bool {
	for field, cond := range f {
		var value interface{}
		switch field {
		case "_id":
			value = mo.ID
		case "model_name":
			value = mo.ModelName
		case "job_id":
			value = mo.JobID
		case "tags":
			value = mo.Tags
		default:
			continue
		}
		if !matchValue(value, cond) {
			return false
		}
	}
	return true
}

func removeString(in []string, target string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// applyJobFields mutates job in place from a partial field map, matching
// the document keys used by the rest of the codebase. Unknown keys are
// ignored rather than rejected, mirroring a schemaless document store's
// tolerance for forward-compatible fields.
func applyJobFields(job *Job, fields map[string]interface{}) {
	for k, v := range fields {
		switch k {
		case "status":
			if s, ok := v.(string); ok {
				job.Status = JobStatus(s)
			} else if s, ok := v.(JobStatus); ok {
				job.Status = s
			}
		case "pod_name":
			job.PodName, _ = v.(string)
		case "ip_addr":
			job.IPAddr, _ = v.(string)
		case "stage":
			job.Stage, _ = v.(string)
		case "output":
			if s, ok := v.(string); ok {
				job.Output = &s
			} else if v == nil {
				job.Output = nil
			}
		case "start_timestamp":
			if t, ok := v.(time.Time); ok {
				job.StartTimestamp = &t
			}
		case "completion_timestamp":
			if t, ok := v.(time.Time); ok {
				job.CompletionTimestamp = &t
			}
		case "exit_code":
			if i, ok := v.(int); ok {
				job.ExitCode = &i
			}
		case "exit_reason":
			job.ExitReason, _ = v.(string)
		case "exception":
			job.Exception, _ = v.(string)
		case "archived":
			if b, ok := v.(bool); ok {
				job.Archived = b
			}
		case "docker_image_repo":
			job.DockerImageRepo, _ = v.(string)
		case "docker_image_tag":
			job.DockerImageTag, _ = v.(string)
		case "docker_image_digest":
			job.DockerImageDigest, _ = v.(string)
		}
	}
}
