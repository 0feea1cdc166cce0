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

// Package pipeline is the in-memory pipeline/operator catalog (spec.md §3,
// §9 "operator dispatch"): populated once at process start, immutable
// thereafter.
package pipeline

import (
	"fmt"

	"github.com/jiaxincao/modelfactory/pkg/param"
)

// Pipeline is a named collection of operators sharing a base image.
type Pipeline struct {
	Name               string
	DockerBaseImage    string
	MainOperatorID     string
	DependentPipelines []string

	// DockerBaseImageConstraint, if set, is a semver constraint
	// (github.com/Masterminds/semver/v3 syntax, e.g. ">= 3.10, < 3.12")
	// that the dockerfile composer validates DockerBaseImage's known
	// version against before composing. Empty means any registered
	// version of the base image is acceptable.
	DockerBaseImageConstraint string
}

// OperatorFunc is the statically registered replacement for the source's
// runtime dotted-path dispatch (spec.md §9 "operator dispatch").
type OperatorFunc func(ctx *ExecutionContext, params param.Tree) (interface{}, error)

// Operator is a named unit of work within a pipeline.
type Operator struct {
	OperatorID     string
	InputSchema    []param.Node
	CPURequest     float64
	MemoryRequest  string
	StorageRequest string
	GPURequest     int
	Pool           string
	Fn             OperatorFunc
}

// ExecutionContext is the {job_id, cpu, execution_mode} context the
// operator executor sets before invoking Operator.Fn (spec.md §4.3).
type ExecutionContext struct {
	JobID         string
	CPURequest    float64
	ExecutionMode string
}

// Catalog is the immutable, process-global pipeline/operator registry.
type Catalog struct {
	pipelines map[string]Pipeline
	operators map[string]Operator
}

// Builder is an empty, mutable catalog (see NewBuilder); call Freeze to obtain the
// immutable Catalog served to the rest of the process.
type Builder struct {
	pipelines map[string]Pipeline
	operators map[string]Operator
}

func NewBuilder() *Builder {
	return &Builder{
		pipelines: map[string]Pipeline{},
		operators: map[string]Operator{},
	}
}

func (b *Builder) AddPipeline(p Pipeline) *Builder {
	b.pipelines[p.Name] = p
	return b
}

// AddOperator registers an operator. Unlike the source's runtime dotted
// path resolution, a duplicate id or an id with no function is rejected here, at
// registration time, not at invocation time (spec.md §9).
func (b *Builder) AddOperator(op Operator) *Builder {
	if _, exists := b.operators[op.OperatorID]; exists {
		panic(fmt.Sprintf("pipeline: duplicate operator id %q", op.OperatorID))
	}
	if op.Fn == nil {
		panic(fmt.Sprintf("pipeline: operator %q registered with a nil function", op.OperatorID))
	}
	b.operators[op.OperatorID] = op
	return b
}

func (b *Builder) Freeze() *Catalog {
	return &Catalog{pipelines: b.pipelines, operators: b.operators}
}

func (c *Catalog) Pipeline(name string) (Pipeline, bool) {
	p, ok := c.pipelines[name]
	return p, ok
}

func (c *Catalog) Operator(id string) (Operator, bool) {
	op, ok := c.operators[id]
	return op, ok
}

func (c *Catalog) Pipelines() []Pipeline {
	out := make([]Pipeline, 0, len(c.pipelines))
	for _, p := range c.pipelines {
		out = append(out, p)
	}
	return out
}
