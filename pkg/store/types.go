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

// Package store is the tracking store: the durable document store behind
// the jobs, models, production_models and triggers collections. Types in
// this file carry the field sets of the documents in those collections;
// Store is the contract every backend (in-memory, Postgres/JSONB) must
// satisfy.
package store

import (
	"sort"
	"time"
)

// JobStatus is one of the job lifecycle states.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobDeleted   JobStatus = "deleted"
)

// Event is an append-only entry in a job's or production pointer's event log.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Resources is a job's resource request envelope.
type Resources struct {
	CPURequest     float64 `json:"cpu_request"`
	MemoryRequest  string  `json:"memory_request"`
	StorageRequest string  `json:"storage_request"`
	GPURequest     int     `json:"gpu_request"`
}

// Job is one execution of one operator. JobID is the document key ("j-"
// prefix + UUID).
type Job struct {
	JobID                string                 `json:"job_id"`
	ParentJobID          string                 `json:"parent_job_id,omitempty"`
	PipelineName         string                 `json:"pipeline_name"`
	PipelineParams       string                 `json:"pipeline_params"`
	OperatorID           string                 `json:"operator_id"`
	Pool                 string                 `json:"pool"`
	Owner                string                 `json:"owner"`
	DockerImageRepo      string                 `json:"docker_image_repo"`
	DockerImageTag       string                 `json:"docker_image_tag"`
	DockerImageDigest    string                 `json:"docker_image_digest,omitempty"`
	ExecutionMode        string                 `json:"execution_mode"`
	Tags                 []string               `json:"tags"`
	CreatorHost          string                 `json:"creator_host,omitempty"`
	Cmd                  string                 `json:"cmd"`
	PodName              string                 `json:"pod_name,omitempty"`
	IPAddr               string                 `json:"ip_addr,omitempty"`
	Stage                string                 `json:"stage"`
	Output               *string                `json:"output,omitempty"`
	TTLAfterFinished     int64                  `json:"ttl_after_finished"`
	NotificationChannel  string                 `json:"notification_channel,omitempty"`
	Resources            Resources              `json:"resources"`
	Events               []Event                `json:"events"`
	CreationTimestamp    time.Time              `json:"creation_timestamp"`
	StartTimestamp       *time.Time             `json:"start_timestamp,omitempty"`
	CompletionTimestamp  *time.Time             `json:"completion_timestamp,omitempty"`
	Status               JobStatus              `json:"status"`
	ExitCode             *int                   `json:"exit_code,omitempty"`
	ExitReason           string                 `json:"exit_reason,omitempty"`
	Exception            string                 `json:"exception,omitempty"`
	Archived             bool                   `json:"archived"`
}

// NormalizeTags sorts and deduplicates j.Tags in place, per spec.md §3's
// "tags never contains duplicates" invariant.
func (j *Job) NormalizeTags() {
	j.Tags = dedupSorted(j.Tags)
}

func dedupSorted(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, t := range in {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// MetricPoint is one observation under Model.Metric[key].
type MetricPoint struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Model is a content-addressed artifact document. ID is the document key
// ("m-" prefix + UUID).
type Model struct {
	ID        string                   `json:"_id"`
	ModelName string                   `json:"model_name"`
	JobID     string                   `json:"job_id"`
	Timestamp time.Time                `json:"timestamp"`
	Tags      []string                 `json:"tags"`
	Metadata  map[string]interface{}   `json:"metadata,omitempty"`
	Metric    map[string][]MetricPoint `json:"metric,omitempty"`
}

// NormalizeTags sorts and deduplicates m.Tags in place.
func (m *Model) NormalizeTags() {
	m.Tags = dedupSorted(m.Tags)
}

// ProductionPointer names the currently promoted model for a model name.
// ID is the model name itself.
type ProductionPointer struct {
	ID      string  `json:"_id"`
	ModelID string  `json:"model_id"`
	Events  []Event `json:"events"`
}

// TriggerRecord is a long-lived named trigger. ID is the trigger name.
type TriggerRecord struct {
	ID                string                 `json:"_id"`
	TriggerClass       string                 `json:"trigger_class"`
	Owner              string                 `json:"owner"`
	InputJSON          string                 `json:"input_json"`
	Enabled            bool                   `json:"enabled"`
	UpdateTimestamp    time.Time              `json:"update_timestamp"`
	LastFailureCount   int                    `json:"last_failure_count"`
	ActionMetadataJSON string                 `json:"action_metadata"`
}
