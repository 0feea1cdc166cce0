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

	"github.com/jiaxincao/modelfactory/pkg/job"
	"github.com/jiaxincao/modelfactory/pkg/param"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

func backfillCronSchema() []param.Node {
	return []param.Node{
		param.Required("schedule"),
		param.Required("pipeline_name"),
		param.Required("docker_image_repo"),
		param.Optional("docker_image_tag", ""),
		param.Optional("start_date", ""),
		param.Optional("end_date", ""),
		param.Optional("backfill_hours", 3.0),
		param.Optional("tags", []interface{}{}),
		param.Optional("pipeline_params", map[string]interface{}{}),
		param.Optional("cpu_request", 0.0),
		param.Optional("memory_request", ""),
		param.Optional("storage_request", ""),
		param.Optional("gpu_request", 0.0),
		param.Optional("pool", ""),
		param.Optional("ttl_after_finished", 43200.0),
	}
}

// BackfillCronTrigger is NOT a ConditionTrigger: it has no readiness gate
// and instead enumerates every missed schedule tick in its own backfill
// window on every sweep, skipping ticks it has already run (spec.md §4.4).
type BackfillCronTrigger struct {
	Base

	schedule         string
	pipelineName     string
	dockerImageRepo  string
	dockerImageTag   string
	startDate        string
	endDate          string
	backfillHours    float64
	tags             []string
	pipelineParams   map[string]interface{}
	cpuRequest       float64
	memoryRequest    string
	storageRequest   string
	gpuRequest       int
	pool             string
	ttlAfterFinished int64
}

func NewBackfillCronTrigger(rec store.TriggerRecord, deps Deps) (*BackfillCronTrigger, error) {
	tree, err := bindTriggerInput(backfillCronSchema(), rec.InputJSON)
	if err != nil {
		return nil, err
	}
	return &BackfillCronTrigger{
		Base:             Base{Record: rec, Deps: deps},
		schedule:         str(tree, "schedule"),
		pipelineName:     str(tree, "pipeline_name"),
		dockerImageRepo:  str(tree, "docker_image_repo"),
		dockerImageTag:   str(tree, "docker_image_tag"),
		startDate:        str(tree, "start_date"),
		endDate:          str(tree, "end_date"),
		backfillHours:    f64(tree, "backfill_hours"),
		tags:             strSlice(tree, "tags"),
		pipelineParams:   mapv(tree, "pipeline_params"),
		cpuRequest:       f64(tree, "cpu_request"),
		memoryRequest:    str(tree, "memory_request"),
		storageRequest:   str(tree, "storage_request"),
		gpuRequest:       intv(tree, "gpu_request"),
		pool:             str(tree, "pool"),
		ttlAfterFinished: i64(tree, "ttl_after_finished"),
	}, nil
}

func (t *BackfillCronTrigger) Exec(ctx context.Context) error {
	sched, err := cronParser.Parse(t.schedule)
	if err != nil {
		return fmt.Errorf("parse cron schedule %q: %w", t.schedule, err)
	}

	now := time.Now().UTC()
	windowStart := now.Add(-time.Duration(t.backfillHours * float64(time.Hour)))
	currDate := windowStart
	if t.startDate != "" {
		if ts, err := time.Parse(time.RFC3339, t.startDate); err == nil && ts.After(currDate) {
			currDate = ts
		}
	}

	var endDate *time.Time
	if t.endDate != "" {
		if ts, err := time.Parse(time.RFC3339, t.endDate); err == nil {
			endDate = &ts
		}
	}

	history := t.history()
	scheduled := false

	cursor := currDate
	for {
		next := sched.Next(cursor)
		if next.After(now) {
			break
		}
		if endDate != nil && next.After(*endDate) {
			break
		}

		tag := "date_" + next.Format("2006_01_02_15_04_05")
		if _, already := history[tag]; !already {
			jobID, err := t.runOnce(ctx, next, tag)
			if err != nil {
				return err
			}
			history[tag] = jobID
			scheduled = true
		}
		cursor = next
	}

	if scheduled {
		return t.updateActionMetadata(ctx, map[string]interface{}{"history": history})
	}
	return nil
}

func (t *BackfillCronTrigger) history() map[string]interface{} {
	if h, ok := t.ensureMeta()["history"].(map[string]interface{}); ok {
		return h
	}
	return map[string]interface{}{}
}

func (t *BackfillCronTrigger) runOnce(ctx context.Context, instant time.Time, dateTag string) (string, error) {
	params := map[string]interface{}{}
	for k, v := range t.pipelineParams {
		params[k] = v
	}
	params["datetime"] = instant.Unix()

	encoded, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	created, err := t.Deps.Jobs.Create(ctx, job.CreateRequest{
		PipelineName:     t.pipelineName,
		PipelineParams:   string(encoded),
		Owner:            "trigger_service",
		Tags:             append(ExtraTags(t.Name()), append([]string{dateTag}, t.tags...)...),
		DockerImageRepo:  t.dockerImageRepo,
		DockerImageTag:   t.dockerImageTag,
		CPURequest:       t.cpuRequest,
		MemoryRequest:    t.memoryRequest,
		StorageRequest:   t.storageRequest,
		GPURequest:       t.gpuRequest,
		Pool:             t.pool,
		TTLAfterFinished: t.ttlAfterFinished,
	})
	if err != nil {
		return "", err
	}
	if created == nil {
		return "", nil
	}
	return created.JobID, nil
}
