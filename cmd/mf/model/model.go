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

// Package model is the "mf model" command group.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jiaxincao/modelfactory/pkg/frontend"
	"github.com/jiaxincao/modelfactory/pkg/logger"
)

func NewModelCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect and promote trained models",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return err
			}
			return errors.New("subcommand is required")
		},
	}

	cmd.AddCommand(newListCommand(l, client))
	cmd.AddCommand(newDeleteCommand(l, client))
	cmd.AddCommand(newTagCommand(l, client))
	cmd.AddCommand(newUntagCommand(l, client))
	cmd.AddCommand(newLogCommand(l, client))
	cmd.AddCommand(newPromoteCommand(l, client))
	cmd.AddCommand(newProdEventsCommand(l, client))
	return cmd
}

func newListCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	var filterJSON string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List models",
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := client.ListModels(context.Background(), filterJSON)
			if err != nil {
				return err
			}
			return printJSON(models)
		},
	}
	cmd.Flags().StringVar(&filterJSON, "filter", "{}", `JSON filter object, e.g. {"tags":{"$all":["champion"]}}`)
	return cmd
}

func newDeleteCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [model-id]",
		Short: "Delete a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.DeleteModel(context.Background(), args[0])
		},
	}
}

func newTagCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "tag [model-id] [tag]",
		Short: "Add a tag to a model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.TagModel(context.Background(), args[0], args[1])
		},
	}
}

func newUntagCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "untag [model-id] [tag]",
		Short: "Remove a tag from a model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.UntagModel(context.Background(), args[0], args[1])
		},
	}
}

func newLogCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "log [model-id]",
		Short: "Show a model's tracking record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := client.GetModel(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(m)
		},
	}
}

func newPromoteCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "promote [model-id]",
		Short: "Promote a model to production for its model_name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.PromoteModel(context.Background(), args[0]); err != nil {
				return err
			}
			l.V(0).Infof("promoted %s", logger.Bold(args[0]))
			return nil
		},
	}
}

func newProdEventsCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "prod-events",
		Short: "List current production pointers and their promotion history",
		RunE: func(cmd *cobra.Command, args []string) error {
			pointers, err := client.ListProductionModels(context.Background())
			if err != nil {
				return err
			}
			return printJSON(pointers)
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
