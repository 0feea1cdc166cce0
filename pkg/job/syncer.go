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

package job

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/jiaxincao/modelfactory/pkg/cluster"
	"github.com/jiaxincao/modelfactory/pkg/consts"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

// Syncer is the execution syncer (spec.md §4.3): it reconciles observed
// cluster state back into the tracking store. It never overwrites
// start_timestamp, which the operator executor owns exclusively.
type Syncer struct {
	Store     store.Store
	Cluster   cluster.Cluster
	Namespace string
}

// SyncOnce runs one reconciliation sweep over every non-terminal k8s-mode
// job older than SyncerMinAgeSeconds, matching per-item failures the way
// the Python original continues past one bad job rather than aborting the
// whole sweep.
func (sy *Syncer) SyncOnce(ctx context.Context) error {
	jobs, err := sy.Store.FindJobs(ctx, store.Filter{
		"execution_mode": consts.ExecutionModeK8S,
		"status":         store.In{Values: []interface{}{string(store.JobPending), string(store.JobRunning)}},
	}, store.Projection{})
	if err != nil {
		return err
	}

	var errs *multierror.Error
	cutoff := time.Now().UTC().Add(-time.Duration(consts.SyncerMinAgeSeconds) * time.Second)

	for _, j := range jobs {
		if j.CreationTimestamp.After(cutoff) {
			continue
		}
		if err := sy.syncJob(ctx, j); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (sy *Syncer) syncJob(ctx context.Context, j store.Job) error {
	clusterStatus, err := sy.Cluster.GetJob(ctx, sy.Namespace, j.JobID)
	if err != nil {
		return err
	}

	if !clusterStatus.Exists {
		return sy.Store.UpdateJobFields(ctx, j.JobID, map[string]interface{}{
			"status": string(store.JobDeleted),
		})
	}

	if clusterStatus.Succeeded {
		return sy.Store.UpdateJobFields(ctx, j.JobID, map[string]interface{}{
			"status": string(store.JobSucceeded),
		})
	}

	if clusterStatus.Failed {
		fields := map[string]interface{}{
			"status": string(store.JobFailed),
		}
		exitCode, exitReason := sy.exitReasonFallback(ctx, j.JobID, clusterStatus)
		if exitCode != nil {
			fields["exit_code"] = int(*exitCode)
		}
		if exitReason != "" {
			fields["exit_reason"] = exitReason
		}
		return sy.Store.UpdateJobFields(ctx, j.JobID, fields)
	}

	return nil
}

// exitReasonFallback implements spec.md §9's "exit-reason fallbacks":
// prefer the pod's last terminated container state, falling back to the
// job's last condition reason, leaving both nil if neither is available.
func (sy *Syncer) exitReasonFallback(ctx context.Context, jobID string, cs *cluster.JobStatus) (*int32, string) {
	pod, err := sy.Cluster.GetPod(ctx, sy.Namespace, jobID)
	if err == nil && pod != nil && pod.TerminatedExitCode != nil {
		return pod.TerminatedExitCode, pod.TerminatedReason
	}
	return nil, cs.LastConditionMsg
}
