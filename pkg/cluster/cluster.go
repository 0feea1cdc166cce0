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

// Package cluster is the thin proxy over the batch-oriented container
// orchestrator (spec.md §4.2): create/list/delete of jobs and pods, log
// retrieval, and deployment restarts.
package cluster

import "context"

// JobSpec is the input to CreateJob. It carries exactly the fields the job
// lifecycle manager (pkg/job) needs to translate into a cluster workload;
// it never leaks a cluster-library type across the package boundary.
type JobSpec struct {
	JobID                string
	Namespace            string
	Image                string
	Cmd                  []string
	CPURequest           float64
	MemoryRequest        string
	StorageRequest       string
	GPURequest           int
	Pool                 string
	TTLSecondsAfterFinished int32
	ActiveDeadlineSeconds   *int64
}

// JobStatus is the observed terminal/non-terminal status of a cluster job,
// as read back by the execution syncer.
type JobStatus struct {
	Name             string
	Exists           bool
	Succeeded        bool
	Failed           bool
	LastConditionMsg string
}

// Pod is the subset of pod state the syncer and CLI need.
type Pod struct {
	Name              string
	JobID             string
	IP                string
	Phase             string
	TerminatedExitCode *int32
	TerminatedReason   string
}

// Cluster is the cluster proxy contract (spec.md §4.2).
type Cluster interface {
	CreateJob(ctx context.Context, spec JobSpec) error
	ListJobs(ctx context.Context, namespace string) ([]JobStatus, error)
	GetJob(ctx context.Context, namespace, name string) (*JobStatus, error)
	DeleteJob(ctx context.Context, namespace, name string) error

	ListPods(ctx context.Context, namespace string) ([]Pod, error)
	GetPod(ctx context.Context, namespace, jobID string) (*Pod, error)
	DeletePod(ctx context.Context, namespace, name string) error
	GetJobLog(ctx context.Context, namespace, podName string) (string, error)

	RestartDeployment(ctx context.Context, namespace, name string) error
}
