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

// Package trigger is the "mf trigger" command group.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lucasepe/codename"
	"github.com/spf13/cobra"

	"github.com/jiaxincao/modelfactory/pkg/frontend"
	"github.com/jiaxincao/modelfactory/pkg/logger"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

func NewTriggerCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Manage scheduled and conditional triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return err
			}
			return errors.New("subcommand is required")
		},
	}

	cmd.AddCommand(newCreateCommand(l, client))
	cmd.AddCommand(newRenameCommand(l, client))
	cmd.AddCommand(newEnableCommand(l, client))
	cmd.AddCommand(newDisableCommand(l, client))
	cmd.AddCommand(newDeleteCommand(l, client))
	cmd.AddCommand(newResetCommand(l, client))
	cmd.AddCommand(newListCommand(l, client))
	cmd.AddCommand(newListJobsCommand(l, client))
	cmd.AddCommand(newForceRunCommand(l, client))
	cmd.AddCommand(newRunCommand(l, client))
	cmd.AddCommand(newDumpCommand(l, client))
	cmd.AddCommand(newUpdateOwnerCommand(l, client))
	cmd.AddCommand(newUpdateInputJSONCommand(l, client))
	return cmd
}

func newCreateCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	var (
		name, class, owner, inputJSON string
		generateName                  bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			if generateName {
				generated, err := generateTriggerName()
				if err != nil {
					return err
				}
				name = generated
			}
			if name == "" {
				return errors.New("--name or --generate-name is required")
			}

			created, err := client.CreateTrigger(context.Background(), store.TriggerRecord{
				ID:           name,
				TriggerClass: class,
				Owner:        owner,
				InputJSON:    inputJSON,
			})
			if err != nil {
				return err
			}
			l.V(0).Infof("created trigger %s", logger.Bold(created.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "trigger name")
	cmd.Flags().BoolVar(&generateName, "generate-name", false, "generate a human-readable name instead of --name")
	cmd.Flags().StringVar(&class, "class", "", "cron | backfill_cron | active_tag_job | model_serving_rollout")
	cmd.Flags().StringVar(&owner, "owner", "", "trigger owner")
	cmd.Flags().StringVar(&inputJSON, "input-json", "{}", "JSON object of class-specific parameters")
	return cmd
}

// generateTriggerName produces a short, memorable, collision-resistant name
// (e.g. "stoic-feynman") instead of requiring the caller to invent one.
func generateTriggerName() (string, error) {
	rng, err := codename.DefaultRNG()
	if err != nil {
		return "", err
	}
	return codename.Generate(rng, 0), nil
}

func newRenameCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "rename [old-name] [new-name]",
		Short: "Rename a trigger",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.RenameTrigger(context.Background(), args[0], args[1])
		},
	}
}

func newEnableCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "enable [name]",
		Short: "Enable a trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.EnableTrigger(context.Background(), args[0])
		},
	}
}

func newDisableCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "disable [name]",
		Short: "Disable a trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.DisableTrigger(context.Background(), args[0])
		},
	}
}

func newDeleteCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [name]",
		Short: "Delete a trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.DeleteTrigger(context.Background(), args[0])
		},
	}
}

func newResetCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [name]",
		Short: "Clear a trigger's failure count and re-enable it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.ResetTrigger(context.Background(), args[0])
		},
	}
}

func newListCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			triggers, err := client.ListTriggers(context.Background())
			if err != nil {
				return err
			}
			return printJSON(triggers)
		},
	}
}

func newListJobsCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list-jobs [name]",
		Short: "List jobs created by a trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := fmt.Sprintf(`{"tags":{"$all":["trigger_job","%s"]}}`, args[0])
			jobs, err := client.FindJobs(context.Background(), filter, "")
			if err != nil {
				return err
			}
			return printJSON(jobs)
		},
	}
}

func newForceRunCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "force-run [name]",
		Short: "Run a trigger's action immediately, bypassing its readiness check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.ForceRunTrigger(context.Background(), args[0])
		},
	}
}

func newRunCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "run [name]",
		Short: "Evaluate a trigger once, outside the regular sweep",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.RunTrigger(context.Background(), args[0])
		},
	}
}

func newDumpCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "dump [name]",
		Short: "Pretty-print a trigger's resolved record, including action metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := client.GetTrigger(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}
}

func newUpdateOwnerCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "update-owner [name] [owner]",
		Short: "Change a trigger's owner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.UpdateTriggerOwner(context.Background(), args[0], args[1])
		},
	}
}

func newUpdateInputJSONCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "update-input-json [name] [input-json]",
		Short: "Replace a trigger's class-specific parameters",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.UpdateTriggerInputJSON(context.Background(), args[0], args[1])
		},
	}
}

func printJSON(v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.New("render response: " + err.Error())
	}
	fmt.Println(string(encoded))
	return nil
}
