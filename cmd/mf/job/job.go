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

// Package job is the "mf job" command group.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jiaxincao/modelfactory/pkg/consts"
	"github.com/jiaxincao/modelfactory/pkg/frontend"
	"github.com/jiaxincao/modelfactory/pkg/job"
	"github.com/jiaxincao/modelfactory/pkg/logger"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

func NewJobCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Create and inspect model-factory jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return err
			}
			return errors.New("subcommand is required")
		},
	}

	cmd.AddCommand(newCreateCommand(l, client))
	cmd.AddCommand(newRetryCommand(l, client))
	cmd.AddCommand(newEventsCommand(l, client))
	cmd.AddCommand(newInfoCommand(l, client))
	cmd.AddCommand(newListCommand(l, client))
	cmd.AddCommand(newTagCommand(l, client))
	cmd.AddCommand(newUntagCommand(l, client))
	cmd.AddCommand(newHideCommand(l, client))
	cmd.AddCommand(newDeleteCommand(l, client))
	cmd.AddCommand(newReproCommand(l, client))
	return cmd
}

func newCreateCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	var req job.CreateRequest
	var pipelineParams string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new job",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.PipelineParams = pipelineParams
			created, err := client.CreateK8sJob(context.Background(), req)
			if err != nil {
				return err
			}
			l.V(0).Infof("created job %s", logger.Bold(created.JobID))
			return nil
		},
	}

	bindCreateFlags(cmd, &req, &pipelineParams)
	return cmd
}

func newRetryCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [job-id]",
		Short: "Create a new job that reruns a previous job's pipeline and parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			prior, err := client.GetJob(ctx, args[0])
			if err != nil {
				return err
			}

			created, err := client.CreateK8sJob(ctx, job.CreateRequest{
				PipelineName:     prior.PipelineName,
				OperatorID:       prior.OperatorID,
				PipelineParams:   prior.PipelineParams,
				Owner:            prior.Owner,
				Tags:             prior.Tags,
				DockerImageRepo:  prior.DockerImageRepo,
				DockerImageTag:   prior.DockerImageTag,
				Pool:             prior.Pool,
				CPURequest:       prior.Resources.CPURequest,
				MemoryRequest:    prior.Resources.MemoryRequest,
				StorageRequest:   prior.Resources.StorageRequest,
				TTLAfterFinished: consts.DefaultTTLAfterFinishedSeconds,
			})
			if err != nil {
				return err
			}
			l.V(0).Infof("retried %s as %s", logger.Bold(prior.JobID), logger.Bold(created.JobID))
			return nil
		},
	}
}

func newEventsCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "events [job-id]",
		Short: "Show a job's lifecycle event history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := client.GetJob(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(j.Events)
		},
	}
}

func newInfoCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "info [job-id]",
		Short: "Show one job's tracking record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := client.GetJob(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(j)
		},
	}
}

func newListCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	var filterJSON string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			var (
				jobs []jobRow
				err  error
			)
			switch {
			case filterJSON != "":
				fetched, ferr := client.FindJobs(ctx, filterJSON, "")
				jobs, err = toRows(fetched), ferr
			case all:
				fetched, ferr := client.ListAllJobs(ctx)
				jobs, err = toRows(fetched), ferr
			default:
				fetched, ferr := client.ListVisibleJobs(ctx)
				jobs, err = toRows(fetched), ferr
			}
			if err != nil {
				return err
			}
			renderJobTable(jobs)
			return nil
		},
	}
	cmd.Flags().StringVar(&filterJSON, "filter", "", `JSON filter object, e.g. {"status":{"$nin":["succeeded"]}}`)
	cmd.Flags().BoolVar(&all, "all", false, "include jobs hidden by the auto-hide sweep")
	return cmd
}

func newTagCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "tag [job-id] [tag]",
		Short: "Add a tag to a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.TagJob(context.Background(), args[0], args[1])
		},
	}
}

func newUntagCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "untag [job-id] [tag]",
		Short: "Remove a tag from a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.UntagJob(context.Background(), args[0], args[1])
		},
	}
}

func newHideCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "hide [job-id]",
		Short: "Hide a job from the default list view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.TagJob(context.Background(), args[0], consts.HideTag)
		},
	}
}

func newDeleteCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [job-id]",
		Short: "Delete a job's cluster workload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.DeleteK8sJob(context.Background(), args[0])
		},
	}
}

func newReproCommand(l logger.Logger, client *frontend.Client) *cobra.Command {
	var req job.CreateRequest
	var pipelineParams string

	cmd := &cobra.Command{
		Use:   "repro",
		Short: "Build/pull the image and run the operator in a local container, bypassing the cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.PipelineParams = pipelineParams
			req.ExecutionMode = consts.ExecutionModeLocal
			created, err := client.CreateK8sJob(context.Background(), req)
			if err != nil {
				return err
			}
			l.V(0).Infof("ran %s locally", logger.Bold(created.JobID))
			return nil
		},
	}

	bindCreateFlags(cmd, &req, &pipelineParams)
	return cmd
}

func bindCreateFlags(cmd *cobra.Command, req *job.CreateRequest, pipelineParams *string) {
	cmd.Flags().StringVar(&req.PipelineName, "pipeline-name", "", "pipeline to run")
	cmd.Flags().StringVar(&req.OperatorID, "operator-id", "", "operator within the pipeline")
	cmd.Flags().StringVar(pipelineParams, "pipeline-params", "{}", "JSON object of operator parameters")
	cmd.Flags().StringVar(&req.Owner, "owner", "", "job owner")
	cmd.Flags().StringSliceVar(&req.Tags, "tags", nil, "tags to attach")
	cmd.Flags().StringVar(&req.DockerImageRepo, "docker-image-repo", "", "pre-built image repo (skips building one)")
	cmd.Flags().StringVar(&req.DockerImageTag, "docker-image-tag", "", "pre-built image tag")
	cmd.Flags().StringVar(&req.Pool, "pool", "", "node pool")
	cmd.Flags().Float64Var(&req.CPURequest, "cpu", 0, "CPU request")
	cmd.Flags().StringVar(&req.MemoryRequest, "memory", "", "memory request")
	cmd.Flags().StringVar(&req.StorageRequest, "storage", "", "storage request")
	cmd.Flags().Int64Var(&req.TTLAfterFinished, "ttl-after-finished", consts.DefaultTTLAfterFinishedSeconds, "seconds to keep the workload after completion")
}

type jobRow struct {
	jobID, pipeline, status, owner string
}

func toRows(jobs []store.Job) []jobRow {
	rows := make([]jobRow, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, jobRow{jobID: j.JobID, pipeline: j.PipelineName, status: string(j.Status), owner: j.Owner})
	}
	return rows
}

func printJSON(v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.New("render response: " + err.Error())
	}
	fmt.Println(string(encoded))
	return nil
}

func renderJobTable(rows []jobRow) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Job ID", "Pipeline", "Status", "Owner"})
	for _, r := range rows {
		table.Append([]string{r.jobID, r.pipeline, r.status, r.owner})
	}
	table.Render()
}
