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

package job

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jiaxincao/modelfactory/pkg/consts"
	"github.com/jiaxincao/modelfactory/pkg/param"
	"github.com/jiaxincao/modelfactory/pkg/pipeline"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

// Execute is the operator executor entry point (spec.md §4.3): the
// container's actual main, invoked as
// "execute-operator <job_id> <operator_id> --cpu <cpu> --operator-params
// <json> --execution-mode <mode>". It owns start_timestamp, status=running,
// output, completion_timestamp, status=succeeded|failed, and exception;
// no other writer ever touches these fields while the container is alive
// (spec.md §5).
func Execute(ctx context.Context, s store.Store, catalog *pipeline.Catalog, jobID, operatorID string, cpu float64, operatorParams, executionMode string) error {
	op, ok := catalog.Operator(operatorID)
	if !ok {
		return fmt.Errorf("unknown operator %q", operatorID)
	}

	podName, _ := os.Hostname()
	ip := localIP()

	if err := s.UpdateJobFields(ctx, jobID, map[string]interface{}{
		"stage":           consts.StageStarted,
		"pod_name":        podName,
		"ip_addr":         ip,
		"status":          string(store.JobRunning),
		"start_timestamp": time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("record job start: %w", err)
	}

	execCtx := &pipeline.ExecutionContext{JobID: jobID, CPURequest: cpu, ExecutionMode: executionMode}

	output, err := invokeWithSchema(execCtx, op, operatorParams)
	if err != nil {
		failErr := s.UpdateJobFields(ctx, jobID, map[string]interface{}{
			"status":               string(store.JobFailed),
			"completion_timestamp": time.Now().UTC(),
			"exception":            err.Error(),
		})
		if failErr != nil {
			return fmt.Errorf("%w (and failed to record failure: %v)", err, failErr)
		}
		return err
	}

	fields := map[string]interface{}{
		"status":               string(store.JobSucceeded),
		"completion_timestamp": time.Now().UTC(),
		"stage":                consts.StageDone,
	}
	if output != nil {
		encoded, err := json.Marshal(output)
		if err != nil {
			return fmt.Errorf("encode operator output: %w", err)
		}
		str := string(encoded)
		fields["output"] = str
	}
	return s.UpdateJobFields(ctx, jobID, fields)
}

// invokeWithSchema binds operatorParams against the operator's schema and
// invokes it, per the parameter binder contract in spec.md §4.5.
func invokeWithSchema(ctx *pipeline.ExecutionContext, op pipeline.Operator, operatorParams string) (interface{}, error) {
	var input map[string]interface{}
	if operatorParams == "" {
		operatorParams = "{}"
	}
	if err := json.Unmarshal([]byte(operatorParams), &input); err != nil {
		return nil, fmt.Errorf("parse operator params: %w", err)
	}

	bound, err := param.Bind(op.InputSchema, input, param.Options{})
	if err != nil {
		return nil, err
	}

	return op.Fn(ctx, bound)
}

func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
