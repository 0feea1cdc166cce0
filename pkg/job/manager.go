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

// Package job is the job lifecycle manager (spec.md §4.3): job creation
// across the three execution modes, the operator executor entry point,
// child-job spawn/join, the execution syncer, and the auto-hide sweeper.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/jiaxincao/modelfactory/pkg/cluster"
	"github.com/jiaxincao/modelfactory/pkg/consts"
	"github.com/jiaxincao/modelfactory/pkg/dockerfile"
	"github.com/jiaxincao/modelfactory/pkg/pipeline"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

// CreateRequest is the union of user-supplied fields for job creation.
// Zero values mean "not supplied" and trigger the catalog/default fallback
// chain from spec.md §4.3's creation sequence step (1).
type CreateRequest struct {
	PipelineName      string
	OperatorID        string
	PipelineParams    string
	Pool              string
	Owner             string
	Tags              []string
	DockerImageRepo   string
	DockerImageTag    string
	ExecutionMode     string
	TTLAfterFinished  int64
	CPURequest        float64
	MemoryRequest     string
	StorageRequest    string
	GPURequest        int
	ParentJobID       string
	NotificationChannel string
	ActiveDeadlineSeconds *int64
}

// Manager implements spec.md §4.3 over a Store, a Cluster, and a pipeline
// Catalog.
type Manager struct {
	Store       store.Store
	Cluster     cluster.Cluster
	Catalog     *pipeline.Catalog
	BaseDir     string
	DockerRegistry string
	Namespace   string
}

// Create runs the three-mode creation sequence from spec.md §4.3. For
// "inplace" it runs synchronously in-process with no tracking record; for
// "local"/"k8s" it builds or resolves an image, registers the job, and
// either runs locally or submits to the cluster.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*store.Job, error) {
	req = m.fillFromCatalog(req)

	if req.ExecutionMode == consts.ExecutionModeInplace {
		return m.runInplace(ctx, req)
	}

	jobID := "j-" + uuid.NewString()
	cmd := launchCommand(jobID, req.OperatorID, req.CPURequest, req.PipelineParams, req.ExecutionMode)

	var digest string
	if req.DockerImageRepo == "" {
		repo, tag, d, err := m.buildAndPushImage(ctx, req.PipelineName)
		if err != nil {
			return nil, fmt.Errorf("build pipeline image: %w", err)
		}
		req.DockerImageRepo, req.DockerImageTag, digest = repo, tag, d
	}

	job := store.Job{
		JobID:             jobID,
		ParentJobID:       req.ParentJobID,
		PipelineName:      req.PipelineName,
		PipelineParams:    req.PipelineParams,
		OperatorID:        req.OperatorID,
		Pool:              req.Pool,
		Owner:             req.Owner,
		DockerImageRepo:   req.DockerImageRepo,
		DockerImageTag:    req.DockerImageTag,
		DockerImageDigest: digest,
		ExecutionMode:     req.ExecutionMode,
		Tags:              req.Tags,
		Cmd:               cmd,
		Stage:             consts.StageCreated,
		TTLAfterFinished:  req.TTLAfterFinished,
		NotificationChannel: req.NotificationChannel,
		Resources: store.Resources{
			CPURequest:     req.CPURequest,
			MemoryRequest:  req.MemoryRequest,
			StorageRequest: req.StorageRequest,
			GPURequest:     req.GPURequest,
		},
		CreationTimestamp: time.Now().UTC(),
		Status:            store.JobPending,
	}
	if host, err := os.Hostname(); err == nil {
		job.CreatorHost = host
	}

	if err := m.Store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	switch req.ExecutionMode {
	case consts.ExecutionModeK8S:
		image := req.DockerImageRepo + ":" + req.DockerImageTag
		err := m.Cluster.CreateJob(ctx, cluster.JobSpec{
			JobID:                   jobID,
			Namespace:               m.Namespace,
			Image:                   image,
			Cmd:                     []string{"sh", "-c", cmd},
			CPURequest:              req.CPURequest,
			MemoryRequest:           req.MemoryRequest,
			StorageRequest:          req.StorageRequest,
			GPURequest:              req.GPURequest,
			Pool:                    req.Pool,
			TTLSecondsAfterFinished: int32(req.TTLAfterFinished),
			ActiveDeadlineSeconds:   req.ActiveDeadlineSeconds,
		})
		if err != nil {
			return nil, fmt.Errorf("submit k8s job %s: %w", jobID, err)
		}
	case consts.ExecutionModeLocal:
		if err := m.runLocalContainer(ctx, jobID, req); err != nil {
			return nil, err
		}
	}

	return &job, nil
}

// fillFromCatalog implements creation-sequence step (1): if the pipeline
// is known, fill missing operator id from main_operator_id and missing
// resource requests from the operator's defaults; otherwise fall back to
// global defaults.
func (m *Manager) fillFromCatalog(req CreateRequest) CreateRequest {
	if req.ExecutionMode == "" {
		req.ExecutionMode = consts.ExecutionModeK8S
	}
	if req.Pool == "" {
		req.Pool = consts.DefaultPool
	}

	var op pipeline.Operator
	haveOp := false
	if p, ok := m.Catalog.Pipeline(req.PipelineName); ok {
		if req.OperatorID == "" {
			req.OperatorID = p.MainOperatorID
		}
		if o, ok := m.Catalog.Operator(req.OperatorID); ok {
			op, haveOp = o, true
		}
	}

	if req.CPURequest == 0 {
		if haveOp && op.CPURequest != 0 {
			req.CPURequest = op.CPURequest
		} else {
			req.CPURequest = consts.DefaultCPURequest
		}
	}
	if req.MemoryRequest == "" {
		if haveOp && op.MemoryRequest != "" {
			req.MemoryRequest = op.MemoryRequest
		} else {
			req.MemoryRequest = consts.DefaultMemoryRequest
		}
	}
	if req.StorageRequest == "" {
		if haveOp && op.StorageRequest != "" {
			req.StorageRequest = op.StorageRequest
		} else {
			req.StorageRequest = consts.DefaultStorageRequest
		}
	}
	if req.GPURequest == 0 && haveOp {
		req.GPURequest = op.GPURequest
	}
	if req.Pool == consts.DefaultPool && haveOp && op.Pool != "" {
		req.Pool = op.Pool
	}

	return req
}

// launchCommand builds the bit-exact launch command from spec.md §6.
func launchCommand(jobID, operatorID string, cpu float64, operatorParams, mode string) string {
	return fmt.Sprintf(
		"python3 -m core.operator_executor execute-operator %s %s --cpu %v --operator-params '%s' --execution-mode '%s'",
		jobID, operatorID, cpu, operatorParams, mode,
	)
}

// BuildImage builds and pushes pipelineName's image without creating a job,
// for the "pipeline build-image" CLI verb.
func (m *Manager) BuildImage(ctx context.Context, pipelineName string) (repo, tag, digest string, err error) {
	return m.buildAndPushImage(ctx, pipelineName)
}

func (m *Manager) buildAndPushImage(ctx context.Context, pipelineName string) (repo, tag, digest string, err error) {
	p, ok := m.Catalog.Pipeline(pipelineName)
	if !ok {
		return "", "", "", fmt.Errorf("unknown pipeline %q", pipelineName)
	}

	content, err := dockerfile.Compose(m.BaseDir, p)
	if err != nil {
		return "", "", "", err
	}
	path, err := dockerfile.Write("/tmp/model-factory", content)
	if err != nil {
		return "", "", "", err
	}
	defer os.Remove(path)

	repo = m.DockerRegistry + "/" + pipelineName
	imageTag := time.Now().UTC().Format("20060102150405")
	fullTag := repo + ":" + imageTag

	digest, err = dockerfile.BuildAndPush(ctx, path, m.BaseDir, fullTag)
	if err != nil {
		return "", "", "", err
	}
	return repo, imageTag, digest, nil
}

// runLocalContainer runs the built image in a local container without
// submitting it to the cluster — useful for reproduction (spec.md §4.3).
func (m *Manager) runLocalContainer(ctx context.Context, jobID string, req CreateRequest) error {
	image := req.DockerImageRepo + ":" + req.DockerImageTag
	cmd := exec.CommandContext(ctx, "docker", "run", "--rm", "--name", jobID, image,
		"sh", "-c", launchCommand(jobID, req.OperatorID, req.CPURequest, req.PipelineParams, req.ExecutionMode))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// runInplace runs the operator command synchronously in the current
// process. Per spec.md §4.3 this mode is explicitly untracked: no
// tracking record is created.
func (m *Manager) runInplace(ctx context.Context, req CreateRequest) (*store.Job, error) {
	op, ok := m.Catalog.Operator(req.OperatorID)
	if !ok {
		return nil, fmt.Errorf("unknown operator %q", req.OperatorID)
	}
	execCtx := &pipeline.ExecutionContext{ExecutionMode: consts.ExecutionModeInplace}
	result, err := invokeWithSchema(execCtx, op, req.PipelineParams)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	output := string(encoded)
	return &store.Job{OperatorID: req.OperatorID, ExecutionMode: consts.ExecutionModeInplace, Output: &output}, nil
}
