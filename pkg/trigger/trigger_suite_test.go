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

package trigger_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jiaxincao/modelfactory/pkg/cluster"
	"github.com/jiaxincao/modelfactory/pkg/job"
	"github.com/jiaxincao/modelfactory/pkg/pipeline"
	"github.com/jiaxincao/modelfactory/pkg/store"
	"github.com/jiaxincao/modelfactory/pkg/trigger"
)

func TestTrigger(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "trigger suite")
}

// fakeCluster is an in-memory stand-in for cluster.Cluster; CreateJob and
// RestartDeployment are what the trigger tests exercise.
type fakeCluster struct {
	created  []cluster.JobSpec
	restarts []string
}

func (f *fakeCluster) CreateJob(_ context.Context, spec cluster.JobSpec) error {
	f.created = append(f.created, spec)
	return nil
}
func (f *fakeCluster) ListJobs(_ context.Context, _ string) ([]cluster.JobStatus, error) {
	return nil, nil
}
func (f *fakeCluster) GetJob(_ context.Context, _, _ string) (*cluster.JobStatus, error) {
	return &cluster.JobStatus{Exists: true}, nil
}
func (f *fakeCluster) DeleteJob(_ context.Context, _, _ string) error { return nil }
func (f *fakeCluster) ListPods(_ context.Context, _ string) ([]cluster.Pod, error) {
	return nil, nil
}
func (f *fakeCluster) GetPod(_ context.Context, _, _ string) (*cluster.Pod, error) {
	return &cluster.Pod{}, nil
}
func (f *fakeCluster) DeletePod(_ context.Context, _, _ string) error { return nil }
func (f *fakeCluster) GetJobLog(_ context.Context, _, _ string) (string, error) {
	return "", nil
}
func (f *fakeCluster) RestartDeployment(_ context.Context, namespace, name string) error {
	f.restarts = append(f.restarts, namespace+"/"+name)
	return nil
}

func newDeps() (trigger.Deps, *fakeCluster, store.Store) {
	mem := store.NewMemory()
	fc := &fakeCluster{}
	mgr := &job.Manager{
		Store:     mem,
		Cluster:   fc,
		Catalog:   pipeline.NewBuilder().Freeze(),
		Namespace: "model-factory-pipelines",
	}
	return trigger.Deps{Store: mem, Jobs: mgr, Cluster: fc, Namespace: "model-factory-pipelines"}, fc, mem
}

var _ = Describe("CronTrigger", func() {
	It("fires once per interval and does not immediately refire", func() {
		deps, fc, mem := newDeps()
		ctx := context.Background()

		rec := store.TriggerRecord{
			ID:           "nightly",
			TriggerClass: trigger.ClassCron,
			Owner:        "alice",
			Enabled:      true,
			InputJSON: `{"schedule":"* * * * *","pipeline_name":"demo_pipeline",` +
				`"operator_id":"pipelines.demo_pipeline.main.main","docker_image_repo":"registry/demo"}`,
		}
		Expect(mem.UpsertTrigger(ctx, rec)).To(Succeed())

		t, err := trigger.New(rec, deps)
		Expect(err).NotTo(HaveOccurred())

		Expect(t.Exec(ctx)).To(Succeed())
		Expect(fc.created).To(HaveLen(1))

		updated, err := mem.GetTrigger(ctx, "nightly")
		Expect(err).NotTo(HaveOccurred())
		t2, err := trigger.New(*updated, deps)
		Expect(err).NotTo(HaveOccurred())

		Expect(t2.Exec(ctx)).To(Succeed())
		Expect(fc.created).To(HaveLen(1), "a second sweep within the same interval must not refire")
	})
})

var _ = Describe("ActiveTagJobTrigger", func() {
	It("refuses to fire while a job tagged active_tag is still non-terminal", func() {
		deps, fc, mem := newDeps()
		ctx := context.Background()

		rec := store.TriggerRecord{
			ID:           "keep-one-running",
			TriggerClass: trigger.ClassActiveTagJob,
			Owner:        "alice",
			Enabled:      true,
			InputJSON: `{"active_tag":"ingest_v2","pipeline_name":"demo_pipeline",` +
				`"docker_image_repo":"registry/demo"}`,
		}
		Expect(mem.UpsertTrigger(ctx, rec)).To(Succeed())

		t, err := trigger.New(rec, deps)
		Expect(err).NotTo(HaveOccurred())

		Expect(t.Exec(ctx)).To(Succeed())
		Expect(fc.created).To(HaveLen(1), "first sweep should launch the job")

		// Push last_action_time into the past so the cooldown gate isn't
		// what blocks the second sweep — the still-active job must be.
		updated, err := mem.GetTrigger(ctx, "keep-one-running")
		Expect(err).NotTo(HaveOccurred())
		updated.ActionMetadataJSON = `{"last_action_time":"2000-01-01T00:00:00Z"}`
		Expect(mem.UpsertTrigger(ctx, *updated)).To(Succeed())

		t2, err := trigger.New(*updated, deps)
		Expect(err).NotTo(HaveOccurred())

		Expect(t2.Exec(ctx)).To(Succeed())
		Expect(fc.created).To(HaveLen(1), "a still-running job with the same tag must block a second launch")
	})
})

var _ = Describe("ModelServingRolloutTrigger", func() {
	It("absorbs the currently-promoted model on first sight, then acts on the next promotion", func() {
		deps, fc, mem := newDeps()
		ctx := context.Background()

		Expect(mem.CreateModel(ctx, store.Model{ID: "m-1", ModelName: "churn-classifier"})).To(Succeed())
		Expect(mem.Promote(ctx, "churn-classifier", "m-1")).To(Succeed())

		rec := store.TriggerRecord{
			ID:           "rollout-churn",
			TriggerClass: trigger.ClassModelServingRollout,
			Owner:        "alice",
			Enabled:      true,
			InputJSON:    `{"model_name":"churn-classifier","deployment_namespace":"serving","deployment_name":"churn-svc"}`,
		}
		Expect(mem.UpsertTrigger(ctx, rec)).To(Succeed())

		t, err := trigger.New(rec, deps)
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Exec(ctx)).To(Succeed())
		Expect(fc.restarts).To(BeEmpty(), "the first sweep must absorb the pointer without restarting")

		Expect(mem.CreateModel(ctx, store.Model{ID: "m-2", ModelName: "churn-classifier"})).To(Succeed())
		Expect(mem.Promote(ctx, "churn-classifier", "m-2")).To(Succeed())

		updated, err := mem.GetTrigger(ctx, "rollout-churn")
		Expect(err).NotTo(HaveOccurred())
		t2, err := trigger.New(*updated, deps)
		Expect(err).NotTo(HaveOccurred())
		Expect(t2.Exec(ctx)).To(Succeed())
		Expect(fc.restarts).To(Equal([]string{"serving/churn-svc"}), "a new promotion must trigger exactly one restart")
	})
})
