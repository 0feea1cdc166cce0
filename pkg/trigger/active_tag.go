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

	"github.com/jiaxincao/modelfactory/pkg/consts"
	"github.com/jiaxincao/modelfactory/pkg/job"
	"github.com/jiaxincao/modelfactory/pkg/param"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

func activeTagSchema() []param.Node {
	return []param.Node{
		param.Required("active_tag"),
		param.Required("pipeline_name"),
		param.Required("docker_image_repo"),
		param.Optional("docker_image_tag", ""),
		param.Optional("tags", []interface{}{}),
		param.Optional("pipeline_params", map[string]interface{}{}),
		param.Optional("cpu_request", 0.0),
		param.Optional("memory_request", ""),
		param.Optional("storage_request", ""),
		param.Optional("gpu_request", 0.0),
		param.Optional("ttl_after_finished", 43200.0),
		param.Optional("operator_id", ""),
	}
}

// ActiveTagJobTrigger keeps at most one k8s job tagged active_tag running at
// a time: it only fires when no such job is non-terminal, and backs off for
// a cooldown window after its own last firing (spec.md §4.4).
type ActiveTagJobTrigger struct {
	Base

	activeTag        string
	pipelineName     string
	operatorID       string
	dockerImageRepo  string
	dockerImageTag   string
	tags             []string
	pipelineParams   map[string]interface{}
	cpuRequest       float64
	memoryRequest    string
	storageRequest   string
	gpuRequest       int
	ttlAfterFinished int64
}

func NewActiveTagJobTrigger(rec store.TriggerRecord, deps Deps) (*ActiveTagJobTrigger, error) {
	tree, err := bindTriggerInput(activeTagSchema(), rec.InputJSON)
	if err != nil {
		return nil, err
	}
	return &ActiveTagJobTrigger{
		Base:             Base{Record: rec, Deps: deps},
		activeTag:        str(tree, "active_tag"),
		pipelineName:     str(tree, "pipeline_name"),
		operatorID:       str(tree, "operator_id"),
		dockerImageRepo:  str(tree, "docker_image_repo"),
		dockerImageTag:   str(tree, "docker_image_tag"),
		tags:             strSlice(tree, "tags"),
		pipelineParams:   mapv(tree, "pipeline_params"),
		cpuRequest:       f64(tree, "cpu_request"),
		memoryRequest:    str(tree, "memory_request"),
		storageRequest:   str(tree, "storage_request"),
		gpuRequest:       intv(tree, "gpu_request"),
		ttlAfterFinished: i64(tree, "ttl_after_finished"),
	}, nil
}

func (t *ActiveTagJobTrigger) Exec(ctx context.Context) error { return execCondition(ctx, t) }

func (t *ActiveTagJobTrigger) IsReady(ctx context.Context) (bool, error) {
	if last, ok := t.metaTime("last_action_time"); ok {
		if time.Since(last) < time.Duration(consts.ActiveTagCooldownSeconds)*time.Second {
			return false, nil
		}
	}

	active, err := t.Deps.Store.FindJobs(ctx, store.Filter{
		"execution_mode": consts.ExecutionModeK8S,
		"status": store.NotIn{Values: []interface{}{
			string(store.JobSucceeded), string(store.JobFailed), string(store.JobDeleted),
		}},
		"tags": store.All{Values: []interface{}{t.activeTag}},
	}, store.Projection{Include: []string{"tags"}})
	if err != nil {
		return false, err
	}

	return len(active) == 0, nil
}

func (t *ActiveTagJobTrigger) DoExec(ctx context.Context) error {
	params, err := json.Marshal(t.pipelineParams)
	if err != nil {
		return err
	}

	created, err := t.Deps.Jobs.Create(ctx, job.CreateRequest{
		PipelineName:     t.pipelineName,
		OperatorID:       t.operatorID,
		PipelineParams:   string(params),
		Owner:            "trigger_service",
		Tags:             append(ExtraTags(t.Name()), append([]string{t.activeTag}, t.tags...)...),
		DockerImageRepo:  t.dockerImageRepo,
		DockerImageTag:   t.dockerImageTag,
		CPURequest:       t.cpuRequest,
		MemoryRequest:    t.memoryRequest,
		StorageRequest:   t.storageRequest,
		GPURequest:       t.gpuRequest,
		TTLAfterFinished: t.ttlAfterFinished,
	})
	if err != nil {
		return err
	}

	jobID := ""
	if created != nil {
		jobID = created.JobID
	}
	return t.updateActionMetadata(ctx, map[string]interface{}{
		"job_id":           jobID,
		"last_action_time": time.Now().UTC().Format(time.RFC3339),
	})
}
