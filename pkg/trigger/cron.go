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
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jiaxincao/modelfactory/pkg/job"
	"github.com/jiaxincao/modelfactory/pkg/param"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func cronSchema() []param.Node {
	return []param.Node{
		param.Required("schedule"),
		param.Required("pipeline_name"),
		param.Required("operator_id"),
		param.Required("docker_image_repo"),
		param.Optional("docker_image_tag", ""),
		param.Optional("start_date", ""),
		param.Optional("tags", []interface{}{}),
		param.Optional("pipeline_params", map[string]interface{}{}),
		param.Optional("cpu_request", 0.0),
		param.Optional("memory_request", ""),
		param.Optional("storage_request", ""),
		param.Optional("gpu_request", 0.0),
		param.Optional("ttl_after_finished", 43200.0),
		param.Optional("pool", ""),
		param.Optional("active_deadline_seconds", nil),
	}
}

// CronTrigger creates one job per cron tick of schedule (spec.md §4.4).
type CronTrigger struct {
	Base

	schedule              string
	pipelineName          string
	operatorID            string
	dockerImageRepo       string
	dockerImageTag        string
	startDate             string
	tags                  []string
	pipelineParams        map[string]interface{}
	cpuRequest            float64
	memoryRequest         string
	storageRequest        string
	gpuRequest            int
	ttlAfterFinished      int64
	pool                  string
	activeDeadlineSeconds *int64
}

func NewCronTrigger(rec store.TriggerRecord, deps Deps) (*CronTrigger, error) {
	tree, err := bindTriggerInput(cronSchema(), rec.InputJSON)
	if err != nil {
		return nil, err
	}
	return &CronTrigger{
		Base:                  Base{Record: rec, Deps: deps},
		schedule:              str(tree, "schedule"),
		pipelineName:          str(tree, "pipeline_name"),
		operatorID:            str(tree, "operator_id"),
		dockerImageRepo:       str(tree, "docker_image_repo"),
		dockerImageTag:        str(tree, "docker_image_tag"),
		startDate:             str(tree, "start_date"),
		tags:                  strSlice(tree, "tags"),
		pipelineParams:        mapv(tree, "pipeline_params"),
		cpuRequest:            f64(tree, "cpu_request"),
		memoryRequest:         str(tree, "memory_request"),
		storageRequest:        str(tree, "storage_request"),
		gpuRequest:            intv(tree, "gpu_request"),
		ttlAfterFinished:      i64(tree, "ttl_after_finished"),
		pool:                  str(tree, "pool"),
		activeDeadlineSeconds: i64Ptr(tree, "active_deadline_seconds"),
	}, nil
}

func (t *CronTrigger) Exec(ctx context.Context) error { return execCondition(ctx, t) }

// IsReady reports whether schedule's next tick after the last recorded
// action time has already elapsed. With no prior action, last_action_time
// defaults to the Unix epoch, so a freshly created trigger's first tick is
// always already due and fires on its first sweep.
func (t *CronTrigger) IsReady(ctx context.Context) (bool, error) {
	sched, err := cronParser.Parse(t.schedule)
	if err != nil {
		return false, fmt.Errorf("parse cron schedule %q: %w", t.schedule, err)
	}

	last := t.lastActionTime()
	next := sched.Next(last)
	return !next.After(time.Now().UTC()), nil
}

func (t *CronTrigger) lastActionTime() time.Time {
	if ts, ok := t.metaTime("last_action_time"); ok {
		return ts
	}
	return time.Unix(0, 0).UTC()
}

func (t *CronTrigger) DoExec(ctx context.Context) error {
	params, err := json.Marshal(t.pipelineParams)
	if err != nil {
		return err
	}

	created, err := t.Deps.Jobs.Create(ctx, job.CreateRequest{
		PipelineName:          t.pipelineName,
		OperatorID:            t.operatorID,
		PipelineParams:        string(params),
		Owner:                 "trigger_service",
		Tags:                  append(ExtraTags(t.Name()), t.tags...),
		DockerImageRepo:       t.dockerImageRepo,
		DockerImageTag:        t.dockerImageTag,
		CPURequest:            t.cpuRequest,
		MemoryRequest:         t.memoryRequest,
		StorageRequest:        t.storageRequest,
		GPURequest:            t.gpuRequest,
		TTLAfterFinished:      t.ttlAfterFinished,
		Pool:                  t.pool,
		ActiveDeadlineSeconds: t.activeDeadlineSeconds,
	})
	if err != nil {
		return err
	}

	jobID := ""
	if created != nil {
		jobID = created.JobID
	}
	return t.updateActionMetadata(ctx, map[string]interface{}{
		"job_id":          jobID,
		"last_action_time": time.Now().UTC().Format(time.RFC3339),
	})
}
