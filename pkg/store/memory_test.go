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

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJobTagsNeverDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.CreateJob(ctx, Job{JobID: "j-1", Tags: []string{"b", "a"}}))
	require.NoError(t, s.TagJob(ctx, "j-1", "a"))
	require.NoError(t, s.TagJob(ctx, "j-1", "c"))

	job, err := s.GetJob(ctx, "j-1")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, job.Tags)

	require.NoError(t, s.UntagJob(ctx, "j-1", "b"))
	job, err = s.GetJob(ctx, "j-1")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, job.Tags)
}

func TestCreateJobRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.CreateJob(ctx, Job{JobID: "j-1"}))
	err := s.CreateJob(ctx, Job{JobID: "j-1"})
	require.Error(t, err)
	require.IsType(t, &AlreadyExistsError{}, err)
}

func TestUpdateJobFieldsNeverClearsUnlistedFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.CreateJob(ctx, Job{JobID: "j-1", Owner: "alice", PipelineName: "demo_pipeline"}))
	require.NoError(t, s.UpdateJobFields(ctx, "j-1", map[string]interface{}{"status": "running"}))

	job, err := s.GetJob(ctx, "j-1")
	require.NoError(t, err)
	require.Equal(t, JobRunning, job.Status)
	require.Equal(t, "alice", job.Owner)
	require.Equal(t, "demo_pipeline", job.PipelineName)
}

func TestPromoteRequiresExistingModel(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	err := s.Promote(ctx, "my-model", "m-missing")
	require.Error(t, err)
	require.True(t, IsNotFound(err))

	require.NoError(t, s.CreateModel(ctx, Model{ID: "m-1", ModelName: "my-model"}))
	require.NoError(t, s.Promote(ctx, "my-model", "m-1"))

	ptr, err := s.GetProductionPointer(ctx, "my-model")
	require.NoError(t, err)
	require.Equal(t, "m-1", ptr.ModelID)
	require.Len(t, ptr.Events, 1)
	require.Equal(t, "promote", ptr.Events[0].Type)
}

func TestFindJobsFilterGrammar(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.CreateJob(ctx, Job{JobID: "j-1", Owner: "alice", Status: JobRunning, Tags: []string{"trigger_job", "nightly"}}))
	require.NoError(t, s.CreateJob(ctx, Job{JobID: "j-2", Owner: "bob", Status: JobSucceeded, Tags: []string{"trigger_job", "weekly"}}))
	require.NoError(t, s.CreateJob(ctx, Job{JobID: "j-3", Owner: "alice", Status: JobFailed, Tags: []string{"ad_hoc"}}))

	byOwner, err := s.FindJobs(ctx, Filter{"owner": "alice"}, Projection{})
	require.NoError(t, err)
	require.Len(t, byOwner, 2)

	byStatus, err := s.FindJobs(ctx, Filter{"status": In{Values: []interface{}{"running", "failed"}}}, Projection{})
	require.NoError(t, err)
	require.Len(t, byStatus, 2)

	byTagAll, err := s.FindJobs(ctx, Filter{"tags": All{Values: []interface{}{"trigger_job", "nightly"}}}, Projection{})
	require.NoError(t, err)
	require.Len(t, byTagAll, 1)
	require.Equal(t, "j-1", byTagAll[0].JobID)
}

func TestAppendEventIsAtomicAppend(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.CreateJob(ctx, Job{JobID: "j-1"}))
	require.NoError(t, s.AppendJobEvent(ctx, "j-1", Event{Type: "submitted"}))
	require.NoError(t, s.AppendJobEvent(ctx, "j-1", Event{Type: "scheduled"}))

	job, err := s.GetJob(ctx, "j-1")
	require.NoError(t, err)
	require.Len(t, job.Events, 2)
	require.Equal(t, "submitted", job.Events[0].Type)
	require.Equal(t, "scheduled", job.Events[1].Type)
}

func TestDeleteModelNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	err := s.DeleteModel(ctx, "m-missing")
	require.True(t, IsNotFound(err))
}
