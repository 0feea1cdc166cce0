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

// Package frontend is the control plane's HTTP surface (spec.md §6): the
// server handlers backing every route the CLI and the trigger engine talk
// to, and the Client wrapping the same routes for callers in this module
// that only have a base URL.
package frontend

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jiaxincao/modelfactory/pkg/cluster"
	"github.com/jiaxincao/modelfactory/pkg/job"
	"github.com/jiaxincao/modelfactory/pkg/model"
	"github.com/jiaxincao/modelfactory/pkg/store"
	"github.com/jiaxincao/modelfactory/pkg/trigger"
)

// Server implements every route in spec.md §6 over a Store, a Cluster, a
// job Manager and a model Registry.
type Server struct {
	Store     store.Store
	Cluster   cluster.Cluster
	Jobs      *job.Manager
	Models    *model.Registry
	Namespace string
}

// Handler builds the ServeMux routing every endpoint spec.md §6 names.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/keepalive", s.handleKeepalive)

	mux.HandleFunc("/register_job", s.handleRegisterJob)
	mux.HandleFunc("/get_info_for_single_job", s.handleGetInfoForSingleJob)
	mux.HandleFunc("/get_info_for_jobs", s.handleGetInfoForJobs)
	mux.HandleFunc("/get_info_for_all_jobs", s.handleGetInfoForAllJobs)
	mux.HandleFunc("/get_info_for_all_visiable_jobs", s.handleGetInfoForAllVisiableJobs)
	mux.HandleFunc("/tag_job", s.handleTagJob)
	mux.HandleFunc("/untag_job", s.handleUntagJob)
	mux.HandleFunc("/create_k8s_job", s.handleCreateK8sJob)
	mux.HandleFunc("/get_k8s_job_log", s.handleGetK8sJobLog)
	mux.HandleFunc("/get_archived_job_log", s.handleGetArchivedJobLog)
	mux.HandleFunc("/list_all_k8s_jobs", s.handleListAllK8sJobs)
	mux.HandleFunc("/list_all_k8s_pods", s.handleListAllK8sPods)
	mux.HandleFunc("/delete_k8s_job", s.handleDeleteK8sJob)

	mux.HandleFunc("/list_models", s.handleListModels)
	mux.HandleFunc("/get_model_by_id", s.handleGetModelByID)
	mux.HandleFunc("/tag_model", s.handleTagModel)
	mux.HandleFunc("/untag_model", s.handleUntagModel)
	mux.HandleFunc("/delete_model", s.handleDeleteModel)
	mux.HandleFunc("/promote_model", s.handlePromoteModel)
	mux.HandleFunc("/list_production_models", s.handleListProductionModels)

	mux.HandleFunc("/create_trigger", s.handleCreateTrigger)
	mux.HandleFunc("/get_trigger", s.handleGetTrigger)
	mux.HandleFunc("/rename_trigger", s.handleRenameTrigger)
	mux.HandleFunc("/delete_trigger", s.handleDeleteTrigger)
	mux.HandleFunc("/reset_trigger", s.handleResetTrigger)
	mux.HandleFunc("/list_triggers", s.handleListTriggers)
	mux.HandleFunc("/enable_trigger", s.handleEnableTrigger)
	mux.HandleFunc("/disable_trigger", s.handleDisableTrigger)
	mux.HandleFunc("/update_trigger_owner", s.handleUpdateTriggerOwner)
	mux.HandleFunc("/update_trigger_input_json", s.handleUpdateTriggerInputJSON)
	mux.HandleFunc("/run_trigger", s.handleRunTrigger)
	mux.HandleFunc("/force_run_trigger", s.handleForceRunTrigger)

	mux.HandleFunc("/list_pipelines", s.handleListPipelines)
	mux.HandleFunc("/build_pipeline_image", s.handleBuildPipelineImage)

	return mux
}

func (s *Server) handleKeepalive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegisterJob(w http.ResponseWriter, r *http.Request) {
	var j store.Job
	if !decodeBody(w, r, &j) {
		return
	}
	if err := s.Store.CreateJob(r.Context(), j); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleGetInfoForSingleJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	j, err := s.Store.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// handleGetInfoForJobs parses the filter and projection query parameters
// exactly once, at the HTTP boundary, into typed store.Filter/Projection
// values.
func (s *Server) handleGetInfoForJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilterParam(r.URL.Query().Get("filter"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err))
		return
	}
	projection, err := parseProjectionParam(r.URL.Query().Get("projection"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err))
		return
	}

	jobs, err := s.Store.FindJobs(r.Context(), filter, projection)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetInfoForAllJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.Store.FindJobs(r.Context(), store.Filter{}, store.Projection{})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleGetInfoForAllVisiableJobs excludes jobs the auto-hide sweeper has
// tagged "hide" (spec.md §4.3); "hide" is a display filter only.
func (s *Server) handleGetInfoForAllVisiableJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.Store.FindJobs(r.Context(), store.Filter{}, store.Projection{})
	if err != nil {
		writeError(w, err)
		return
	}
	visible := make([]store.Job, 0, len(jobs))
	for _, j := range jobs {
		if !hasTag(j.Tags, "hide") {
			visible = append(visible, j)
		}
	}
	writeJSON(w, http.StatusOK, visible)
}

func (s *Server) handleTagJob(w http.ResponseWriter, r *http.Request) {
	var req struct{ JobID, Tag string }
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.Store.TagJob(r.Context(), req.JobID, req.Tag); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUntagJob(w http.ResponseWriter, r *http.Request) {
	var req struct{ JobID, Tag string }
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.Store.UntagJob(r.Context(), req.JobID, req.Tag); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateK8sJob(w http.ResponseWriter, r *http.Request) {
	var req job.CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.ExecutionMode = "k8s"
	created, err := s.Jobs.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleGetK8sJobLog(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	pod, err := s.Cluster.GetPod(r.Context(), s.Namespace, jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	logs, err := s.Cluster.GetJobLog(r.Context(), s.Namespace, pod.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"log": logs})
}

// handleGetArchivedJobLog serves logs for jobs whose cluster workload has
// already been garbage-collected; this module has no log-archival store
// wired yet, so it reports not-found rather than guessing at a format.
func (s *Server) handleGetArchivedJobLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errBody(errArchivedLogUnavailable))
}

func (s *Server) handleListAllK8sJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.Cluster.ListJobs(r.Context(), s.Namespace)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleListAllK8sPods(w http.ResponseWriter, r *http.Request) {
	pods, err := s.Cluster.ListPods(r.Context(), s.Namespace)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pods)
}

func (s *Server) handleDeleteK8sJob(w http.ResponseWriter, r *http.Request) {
	var req struct{ JobID string }
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.Cluster.DeleteJob(r.Context(), s.Namespace, req.JobID); err != nil {
		writeError(w, err)
		return
	}
	err := s.Store.UpdateJobFields(r.Context(), req.JobID, map[string]interface{}{
		"status": string(store.JobDeleted),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilterParam(r.URL.Query().Get("filter"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err))
		return
	}
	models, err := s.Store.FindModels(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models)
}

func (s *Server) handleGetModelByID(w http.ResponseWriter, r *http.Request) {
	modelID := r.URL.Query().Get("model_id")
	m, err := s.Store.GetModel(r.Context(), modelID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleTagModel(w http.ResponseWriter, r *http.Request) {
	var req struct{ ModelID, Tag string }
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.Models.TagModel(r.Context(), req.ModelID, req.Tag); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUntagModel(w http.ResponseWriter, r *http.Request) {
	var req struct{ ModelID, Tag string }
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.Models.UntagModel(r.Context(), req.ModelID, req.Tag); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	var req struct{ ModelID string }
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.Models.DeleteModel(r.Context(), req.ModelID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePromoteModel(w http.ResponseWriter, r *http.Request) {
	var req struct{ ModelID string }
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.Models.Promote(r.Context(), req.ModelID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListProductionModels(w http.ResponseWriter, r *http.Request) {
	pointers, err := s.Models.ListProductionModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pointers)
}

func (s *Server) handleCreateTrigger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID           string
		TriggerClass string
		Owner        string
		InputJSON    string
	}
	if !decodeBody(w, r, &req) {
		return
	}
	rec := store.TriggerRecord{
		ID:              req.ID,
		TriggerClass:    req.TriggerClass,
		Owner:           req.Owner,
		InputJSON:       req.InputJSON,
		Enabled:         true,
		UpdateTimestamp: time.Now().UTC(),
	}
	if _, err := trigger.New(rec, s.triggerDeps()); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err))
		return
	}
	if err := s.Store.UpsertTrigger(r.Context(), rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Store.GetTrigger(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRenameTrigger(w http.ResponseWriter, r *http.Request) {
	var req struct{ OldName, NewName string }
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := s.Store.GetTrigger(r.Context(), req.OldName)
	if err != nil {
		writeError(w, err)
		return
	}
	renamed := *rec
	renamed.ID = req.NewName
	if err := s.Store.UpsertTrigger(r.Context(), renamed); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Store.DeleteTrigger(r.Context(), req.OldName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renamed)
}

func (s *Server) handleDeleteTrigger(w http.ResponseWriter, r *http.Request) {
	var req struct{ Name string }
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.Store.DeleteTrigger(r.Context(), req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleResetTrigger clears the failure budget and re-enables the trigger,
// independent of whether it was already enabled. enable_trigger has the
// same effect, since setTriggerEnabled(true) also zeroes the failure count.
func (s *Server) handleResetTrigger(w http.ResponseWriter, r *http.Request) {
	var req struct{ Name string }
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := s.Store.GetTrigger(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	rec.Enabled = true
	rec.LastFailureCount = 0
	if err := s.Store.UpsertTrigger(r.Context(), *rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateTriggerOwner(w http.ResponseWriter, r *http.Request) {
	var req struct{ Name, Owner string }
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := s.Store.GetTrigger(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	rec.Owner = req.Owner
	if err := s.Store.UpsertTrigger(r.Context(), *rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateTriggerInputJSON(w http.ResponseWriter, r *http.Request) {
	var req struct{ Name, InputJSON string }
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := s.Store.GetTrigger(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	candidate := *rec
	candidate.InputJSON = req.InputJSON
	if _, err := trigger.New(candidate, s.triggerDeps()); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err))
		return
	}
	if err := s.Store.UpsertTrigger(r.Context(), candidate); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, candidate)
}

func (s *Server) handleRunTrigger(w http.ResponseWriter, r *http.Request) {
	s.execTrigger(w, r, false)
}

// handleForceRunTrigger bypasses a ConditionTrigger's readiness gate and
// invokes DoExec unconditionally; variants that are not ConditionTriggers
// (BackfillCronTrigger) behave the same under force-run as under run.
func (s *Server) handleForceRunTrigger(w http.ResponseWriter, r *http.Request) {
	s.execTrigger(w, r, true)
}

func (s *Server) execTrigger(w http.ResponseWriter, r *http.Request, force bool) {
	var req struct{ Name string }
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := s.Store.GetTrigger(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := trigger.New(*rec, s.triggerDeps())
	if err != nil {
		writeError(w, err)
		return
	}

	if force {
		if ct, ok := t.(trigger.ConditionTrigger); ok {
			err = ct.DoExec(r.Context())
		} else {
			err = t.Exec(r.Context())
		}
	} else {
		err = t.Exec(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) triggerDeps() trigger.Deps {
	return trigger.Deps{Store: s.Store, Jobs: s.Jobs, Cluster: s.Cluster, Namespace: s.Namespace}
}

func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	triggers, err := s.Store.ListTriggers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, triggers)
}

func (s *Server) handleEnableTrigger(w http.ResponseWriter, r *http.Request) {
	s.setTriggerEnabled(w, r, true)
}

// handleDisableTrigger sets enabled=false. The original HTTP handler for
// this route was wired to the same code path as enable_trigger; this is
// the fix.
func (s *Server) handleDisableTrigger(w http.ResponseWriter, r *http.Request) {
	s.setTriggerEnabled(w, r, false)
}

func (s *Server) setTriggerEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	var req struct{ Name string }
	if !decodeBody(w, r, &req) {
		return
	}
	t, err := s.Store.GetTrigger(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	t.Enabled = enabled
	if enabled {
		t.LastFailureCount = 0
	}
	if err := s.Store.UpsertTrigger(r.Context(), *t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Jobs.Catalog.Pipelines())
}

func (s *Server) handleBuildPipelineImage(w http.ResponseWriter, r *http.Request) {
	var req struct{ PipelineName string }
	if !decodeBody(w, r, &req) {
		return
	}
	repo, tag, digest, err := s.Jobs.BuildImage(r.Context(), req.PipelineName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"docker_image_repo":   repo,
		"docker_image_tag":    tag,
		"docker_image_digest": digest,
	})
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if store.IsNotFound(err) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, errBody(err))
}

func errBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
