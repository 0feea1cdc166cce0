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

package frontend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jiaxincao/modelfactory/pkg/job"
	"github.com/jiaxincao/modelfactory/pkg/pipeline"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

// Client is the HTTP client the CLI uses against a running Server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: http.DefaultClient}
}

func (c *Client) GetJob(ctx context.Context, jobID string) (*store.Job, error) {
	var j store.Job
	if err := c.get(ctx, "/get_info_for_single_job", url.Values{"job_id": {jobID}}, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *Client) FindJobs(ctx context.Context, filterJSON, projectionJSON string) ([]store.Job, error) {
	var jobs []store.Job
	err := c.get(ctx, "/get_info_for_jobs", url.Values{
		"filter":     {filterJSON},
		"projection": {projectionJSON},
	}, &jobs)
	return jobs, err
}

func (c *Client) ListAllJobs(ctx context.Context) ([]store.Job, error) {
	var jobs []store.Job
	err := c.get(ctx, "/get_info_for_all_jobs", nil, &jobs)
	return jobs, err
}

func (c *Client) ListVisibleJobs(ctx context.Context) ([]store.Job, error) {
	var jobs []store.Job
	err := c.get(ctx, "/get_info_for_all_visiable_jobs", nil, &jobs)
	return jobs, err
}

func (c *Client) TagJob(ctx context.Context, jobID, tag string) error {
	return c.post(ctx, "/tag_job", map[string]string{"JobID": jobID, "Tag": tag}, nil)
}

func (c *Client) UntagJob(ctx context.Context, jobID, tag string) error {
	return c.post(ctx, "/untag_job", map[string]string{"JobID": jobID, "Tag": tag}, nil)
}

func (c *Client) CreateK8sJob(ctx context.Context, req job.CreateRequest) (*store.Job, error) {
	var created store.Job
	if err := c.post(ctx, "/create_k8s_job", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) GetK8sJobLog(ctx context.Context, jobID string) (string, error) {
	var out struct{ Log string }
	err := c.get(ctx, "/get_k8s_job_log", url.Values{"job_id": {jobID}}, &out)
	return out.Log, err
}

func (c *Client) DeleteK8sJob(ctx context.Context, jobID string) error {
	return c.post(ctx, "/delete_k8s_job", map[string]string{"JobID": jobID}, nil)
}

func (c *Client) ListModels(ctx context.Context, filterJSON string) ([]store.Model, error) {
	var models []store.Model
	err := c.get(ctx, "/list_models", url.Values{"filter": {filterJSON}}, &models)
	return models, err
}

func (c *Client) GetModel(ctx context.Context, modelID string) (*store.Model, error) {
	var m store.Model
	if err := c.get(ctx, "/get_model_by_id", url.Values{"model_id": {modelID}}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) TagModel(ctx context.Context, modelID, tag string) error {
	return c.post(ctx, "/tag_model", map[string]string{"ModelID": modelID, "Tag": tag}, nil)
}

func (c *Client) UntagModel(ctx context.Context, modelID, tag string) error {
	return c.post(ctx, "/untag_model", map[string]string{"ModelID": modelID, "Tag": tag}, nil)
}

func (c *Client) DeleteModel(ctx context.Context, modelID string) error {
	return c.post(ctx, "/delete_model", map[string]string{"ModelID": modelID}, nil)
}

func (c *Client) PromoteModel(ctx context.Context, modelID string) error {
	return c.post(ctx, "/promote_model", map[string]string{"ModelID": modelID}, nil)
}

func (c *Client) ListProductionModels(ctx context.Context) ([]store.ProductionPointer, error) {
	var pointers []store.ProductionPointer
	err := c.get(ctx, "/list_production_models", nil, &pointers)
	return pointers, err
}

func (c *Client) CreateTrigger(ctx context.Context, rec store.TriggerRecord) (*store.TriggerRecord, error) {
	var created store.TriggerRecord
	err := c.post(ctx, "/create_trigger", map[string]string{
		"ID": rec.ID, "TriggerClass": rec.TriggerClass, "Owner": rec.Owner, "InputJSON": rec.InputJSON,
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) GetTrigger(ctx context.Context, name string) (*store.TriggerRecord, error) {
	var rec store.TriggerRecord
	err := c.get(ctx, "/get_trigger", url.Values{"name": {name}}, &rec)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) RenameTrigger(ctx context.Context, oldName, newName string) error {
	return c.post(ctx, "/rename_trigger", map[string]string{"OldName": oldName, "NewName": newName}, nil)
}

func (c *Client) DeleteTrigger(ctx context.Context, name string) error {
	return c.post(ctx, "/delete_trigger", map[string]string{"Name": name}, nil)
}

func (c *Client) ResetTrigger(ctx context.Context, name string) error {
	return c.post(ctx, "/reset_trigger", map[string]string{"Name": name}, nil)
}

func (c *Client) ListTriggers(ctx context.Context) ([]store.TriggerRecord, error) {
	var triggers []store.TriggerRecord
	err := c.get(ctx, "/list_triggers", nil, &triggers)
	return triggers, err
}

func (c *Client) EnableTrigger(ctx context.Context, name string) error {
	return c.post(ctx, "/enable_trigger", map[string]string{"Name": name}, nil)
}

func (c *Client) DisableTrigger(ctx context.Context, name string) error {
	return c.post(ctx, "/disable_trigger", map[string]string{"Name": name}, nil)
}

func (c *Client) UpdateTriggerOwner(ctx context.Context, name, owner string) error {
	return c.post(ctx, "/update_trigger_owner", map[string]string{"Name": name, "Owner": owner}, nil)
}

func (c *Client) UpdateTriggerInputJSON(ctx context.Context, name, inputJSON string) error {
	return c.post(ctx, "/update_trigger_input_json", map[string]string{"Name": name, "InputJSON": inputJSON}, nil)
}

func (c *Client) RunTrigger(ctx context.Context, name string) error {
	return c.post(ctx, "/run_trigger", map[string]string{"Name": name}, nil)
}

func (c *Client) ForceRunTrigger(ctx context.Context, name string) error {
	return c.post(ctx, "/force_run_trigger", map[string]string{"Name": name}, nil)
}

func (c *Client) ListPipelines(ctx context.Context) ([]pipeline.Pipeline, error) {
	var pipelines []pipeline.Pipeline
	err := c.get(ctx, "/list_pipelines", nil, &pipelines)
	return pipelines, err
}

// BuildPipelineImageResult is the built image coordinates returned by
// build_pipeline_image.
type BuildPipelineImageResult struct {
	DockerImageRepo   string `json:"docker_image_repo"`
	DockerImageTag    string `json:"docker_image_tag"`
	DockerImageDigest string `json:"docker_image_digest"`
}

func (c *Client) BuildPipelineImage(ctx context.Context, pipelineName string) (*BuildPipelineImageResult, error) {
	var out BuildPipelineImageResult
	err := c.post(ctx, "/build_pipeline_image", map[string]string{"PipelineName": pipelineName}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := c.BaseURL + path
	if q != nil {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp struct{ Error string }
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error == "" {
			errResp.Error = resp.Status
		}
		return fmt.Errorf("%s: %s", req.URL.Path, errResp.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
