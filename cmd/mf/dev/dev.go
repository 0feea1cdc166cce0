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

// Package dev is the "mf dev" command group: local-iteration conveniences
// that never touch a running frontend or cluster.
package dev

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jiaxincao/modelfactory/pkg/consts"
	"github.com/jiaxincao/modelfactory/pkg/job"
	"github.com/jiaxincao/modelfactory/pkg/logger"
	"github.com/jiaxincao/modelfactory/pkg/pipeline"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

const aliasBlock = `
# model-factory dev shortcuts
alias mfj='mf job'
alias mfm='mf model'
alias mft='mf trigger'
`

func NewDevCommand(l logger.Logger, catalog *pipeline.Catalog) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Local developer conveniences",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return err
			}
			return errors.New("subcommand is required")
		},
	}

	cmd.AddCommand(newInstallAliasCommand(l))
	cmd.AddCommand(newContainerCommand(l, catalog))
	return cmd
}

func newInstallAliasCommand(l logger.Logger) *cobra.Command {
	var rcPath string

	cmd := &cobra.Command{
		Use:   "install-alias",
		Short: "Append mf shortcut aliases to your shell rc file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rcPath
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				path = filepath.Join(home, ".bashrc")
			}

			f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer f.Close()

			if _, err := f.WriteString(aliasBlock); err != nil {
				return err
			}
			l.V(0).Infof("appended aliases to %s; run `source %s` to pick them up", logger.Bold(path), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&rcPath, "rc-path", "", "shell rc file to append to (defaults to ~/.bashrc)")
	return cmd
}

func newContainerCommand(l logger.Logger, catalog *pipeline.Catalog) *cobra.Command {
	var operatorID, pipelineParams string

	cmd := &cobra.Command{
		Use:   "container",
		Short: "Run one operator synchronously in this process, untracked (spec's inplace execution mode)",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := &job.Manager{
				Store:   store.NewMemory(),
				Catalog: catalog,
			}
			out, err := mgr.Create(context.Background(), job.CreateRequest{
				OperatorID:     operatorID,
				PipelineParams: pipelineParams,
				ExecutionMode:  consts.ExecutionModeInplace,
			})
			if err != nil {
				return err
			}
			if out.Output != nil {
				fmt.Println(*out.Output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&operatorID, "operator-id", "", "operator to run")
	cmd.Flags().StringVar(&pipelineParams, "pipeline-params", "{}", "JSON object of operator parameters")
	return cmd
}
