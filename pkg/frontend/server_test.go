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
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jiaxincao/modelfactory/pkg/store"
)

func newTestServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	mem := store.NewMemory()
	srv := &Server{Store: mem, Namespace: "model-factory-pipelines"}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, NewClient(ts.URL)
}

func TestDisableTriggerActuallyDisables(t *testing.T) {
	srv, client := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, srv.Store.UpsertTrigger(ctx, store.TriggerRecord{
		ID:              "nightly-report",
		TriggerClass:    "cron",
		Owner:           "alice",
		Enabled:         true,
		UpdateTimestamp: time.Now().UTC(),
	}))

	require.NoError(t, client.DisableTrigger(ctx, "nightly-report"))

	rec, err := srv.Store.GetTrigger(ctx, "nightly-report")
	require.NoError(t, err)
	require.False(t, rec.Enabled, "disable_trigger must clear enabled, not set it")

	require.NoError(t, client.EnableTrigger(ctx, "nightly-report"))
	rec, err = srv.Store.GetTrigger(ctx, "nightly-report")
	require.NoError(t, err)
	require.True(t, rec.Enabled)
}

func TestGetInfoForJobsParsesFilterAtTheEdge(t *testing.T) {
	srv, client := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, srv.Store.CreateJob(ctx, store.Job{
		JobID: "j-1", Owner: "alice", Status: store.JobRunning, ExecutionMode: "k8s",
		Tags: []string{"nightly"}, CreationTimestamp: time.Now().UTC(),
	}))
	require.NoError(t, srv.Store.CreateJob(ctx, store.Job{
		JobID: "j-2", Owner: "bob", Status: store.JobSucceeded, ExecutionMode: "k8s",
		CreationTimestamp: time.Now().UTC(),
	}))

	jobs, err := client.FindJobs(ctx, `{"status":{"$nin":["succeeded","failed","deleted"]}}`, "")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "j-1", jobs[0].JobID)
}

func TestListModelsRejectsMalformedFilter(t *testing.T) {
	_, client := newTestServer(t)
	_, err := client.ListModels(context.Background(), "not-json")
	require.Error(t, err)
}
