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

// Package demopipeline is the reference pipeline used by the end-to-end
// creation scenario: a single operator that echoes its bound input back as
// its output, so a job created against it can be driven start-to-finish
// without any real training workload.
package demopipeline

import (
	"github.com/jiaxincao/modelfactory/pkg/param"
	"github.com/jiaxincao/modelfactory/pkg/pipeline"
)

const (
	Name             = "demo_pipeline"
	MainOperatorID   = "pipelines.demo_pipeline.main.main"
	DockerBaseImage  = "python3.10-slim"
)

// Register adds demo_pipeline and its one operator to b.
func Register(b *pipeline.Builder) {
	b.AddOperator(pipeline.Operator{
		OperatorID:     MainOperatorID,
		CPURequest:     1,
		MemoryRequest:  "1G",
		StorageRequest: "1G",
		InputSchema: []param.Node{
			param.Optional("message", "hello"),
			param.Optional("repeat", 1.0),
		},
		Fn: mainOperator,
	})

	b.AddPipeline(pipeline.Pipeline{
		Name:            Name,
		DockerBaseImage: DockerBaseImage,
		MainOperatorID:  MainOperatorID,
	})
}

func mainOperator(ctx *pipeline.ExecutionContext, params param.Tree) (interface{}, error) {
	message, _ := params["message"].(string)
	repeat, _ := params["repeat"].(float64)
	if repeat <= 0 {
		repeat = 1
	}

	out := ""
	for i := 0; i < int(repeat); i++ {
		out += message
	}

	return map[string]interface{}{
		"job_id": ctx.JobID,
		"echo":   out,
	}, nil
}
