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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/kind/pkg/log"

	devcmd "github.com/jiaxincao/modelfactory/cmd/mf/dev"
	jobcmd "github.com/jiaxincao/modelfactory/cmd/mf/job"
	modelcmd "github.com/jiaxincao/modelfactory/cmd/mf/model"
	pipelinecmd "github.com/jiaxincao/modelfactory/cmd/mf/pipeline"
	triggercmd "github.com/jiaxincao/modelfactory/cmd/mf/trigger"
	"github.com/jiaxincao/modelfactory/pkg/config"
	"github.com/jiaxincao/modelfactory/pkg/consts"
	"github.com/jiaxincao/modelfactory/pkg/frontend"
	"github.com/jiaxincao/modelfactory/pkg/logger"
	"github.com/jiaxincao/modelfactory/pkg/pipeline"
	"github.com/jiaxincao/modelfactory/pipelines/demopipeline"
	internalversion "github.com/jiaxincao/modelfactory/pkg/version"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

type flagArgs struct {
	Verbosity  int32
	ConfigPath string
}

// NewRootCommand builds the "mf" CLI: it resolves ~/.model_factory.ini into
// a frontend.Client, then wires every verb group onto it, the way gtctl's
// own NewRootCommand resolves a verbosity flag into a shared logger before
// wiring its own command groups.
func NewRootCommand() *cobra.Command {
	flags := &flagArgs{}
	cmd := &cobra.Command{
		Args:    cobra.ArbitraryArgs,
		Use:     "mf",
		Short:   "mf is a command-line tool for the model-factory control plane.",
		Version: internalversion.Get().String(),
	}

	cmd.PersistentFlags().Int32VarP(&flags.Verbosity, "verbosity", "v", 0, "info log verbosity, higher value produces more output")
	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", consts.ConfigFilePath, "path to the model-factory config file")

	l := logger.New(os.Stdout, log.Level(flags.Verbosity), logger.WithColored(), logger.WithTag("mf"))
	client := frontend.NewClient("")

	// Flags are only parsed once a command runs, so --verbosity and
	// --config are applied here rather than at construction time.
	cmd.PersistentPreRun = func(*cobra.Command, []string) {
		if v, ok := l.(interface{ SetVerbosity(log.Level) }); ok {
			v.SetVerbosity(log.Level(flags.Verbosity))
		}
		cfg, err := config.Load(flags.ConfigPath)
		if err != nil {
			l.Fatalf("load config: %v", err)
		}
		client.BaseURL = cfg.FrontendEndpointOrEnv()
	}

	catalog := pipeline.NewBuilder()
	demopipeline.Register(catalog)

	cmd.AddCommand(jobcmd.NewJobCommand(l, client))
	cmd.AddCommand(modelcmd.NewModelCommand(l, client))
	cmd.AddCommand(pipelinecmd.NewPipelineCommand(l, client))
	cmd.AddCommand(triggercmd.NewTriggerCommand(l, client))
	cmd.AddCommand(devcmd.NewDevCommand(l, catalog.Freeze()))

	return cmd
}
