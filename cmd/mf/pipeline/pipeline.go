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

// Package pipeline is the "mf pipeline" command group.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/jiaxincao/modelfactory/pkg/frontend"
	"github.com/jiaxincao/modelfactory/pkg/logger"
)

func NewPipelineCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Scaffold, inspect and build pipeline images",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return err
			}
			return errors.New("subcommand is required")
		},
	}

	cmd.AddCommand(newCreateCommand(l))
	cmd.AddCommand(newListCommand(l, client))
	cmd.AddCommand(newBuildImageCommand(l, client))
	return cmd
}

func newCreateCommand(l logger.Logger) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "create [pipeline-name]",
		Short: "Scaffold a new pipeline package under ./pipelines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			path, err := scaffold(dir, name)
			if err != nil {
				return err
			}
			l.V(0).Infof("wrote %s; register it in your process's pipeline.Builder before building its image", logger.Bold(path))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "pipelines", "directory holding pipeline packages")
	return cmd
}

func newListCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pipelines registered with the running frontend",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipelines, err := client.ListPipelines(context.Background())
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(pipelines, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}
}

func newBuildImageCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "build-image [pipeline-name]",
		Short: "Build and push a pipeline's Docker image without running a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := client.BuildPipelineImage(context.Background(), args[0])
			if err != nil {
				return err
			}
			l.V(0).Infof("pushed %s:%s (%s)", logger.Bold(result.DockerImageRepo), result.DockerImageTag, result.DockerImageDigest)
			return nil
		},
	}
}

var pipelineTemplate = template.Must(template.New("pipeline").Parse(`// Copyright 2024 The Model Factory Authors
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

package {{.Package}}

import (
	"github.com/jiaxincao/modelfactory/pkg/param"
	"github.com/jiaxincao/modelfactory/pkg/pipeline"
)

const (
	Name            = "{{.Name}}"
	MainOperatorID  = "pipelines.{{.Name}}.main.main"
	DockerBaseImage = "python3.10-slim"
)

// Register adds {{.Name}} and its main operator to b.
func Register(b *pipeline.Builder) {
	b.AddOperator(pipeline.Operator{
		OperatorID:     MainOperatorID,
		CPURequest:     1,
		MemoryRequest:  "1G",
		StorageRequest: "1G",
		InputSchema:    []param.Node{},
		Fn:             mainOperator,
	})

	b.AddPipeline(pipeline.Pipeline{
		Name:            Name,
		DockerBaseImage: DockerBaseImage,
		MainOperatorID:  MainOperatorID,
	})
}

func mainOperator(ctx *pipeline.ExecutionContext, params param.Tree) (interface{}, error) {
	return map[string]interface{}{"job_id": ctx.JobID}, nil
}
`))

func scaffold(baseDir, name string) (string, error) {
	pkg := strings.ReplaceAll(name, "-", "_")
	dir := filepath.Join(baseDir, pkg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, pkg+".go")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("scaffold %s: %w", path, err)
	}
	defer f.Close()

	return path, pipelineTemplate.Execute(f, struct{ Package, Name string }{Package: pkg, Name: name})
}
