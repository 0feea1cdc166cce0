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

// AutoHider tags as "hide" every model older than 7 days not already
// hidden, and every job whose last activity is older than 7 days and which
// is not currently active in the cluster (spec.md §4.3). "hide" is a
// display filter only; it never affects referential integrity.
type AutoHider struct {
	Store     store.Store
	Cluster   cluster.Cluster
	Namespace string
}

// SweepOnce runs one auto-hide pass, continuing past per-item failures the
// same way the trigger and syncer sweeps do.
func (h *AutoHider) SweepOnce(ctx context.Context) error {
	var errs *multierror.Error
	if err := h.hideModels(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := h.hideJobs(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

func (h *AutoHider) hideModels(ctx context.Context) error {
	models, err := h.Store.FindModels(ctx, store.Filter{})
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-time.Duration(consts.AutoHideAgeSeconds) * time.Second)
	var errs *multierror.Error
	for _, mo := range models {
		if mo.Timestamp.After(cutoff) || containsTag(mo.Tags, consts.HideTag) {
			continue
		}
		if err := h.Store.TagModel(ctx, mo.ID, consts.HideTag); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (h *AutoHider) hideJobs(ctx context.Context) error {
	jobs, err := h.Store.FindJobs(ctx, store.Filter{}, store.Projection{})
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-time.Duration(consts.AutoHideAgeSeconds) * time.Second)
	var errs *multierror.Error
	for _, j := range jobs {
		if containsTag(j.Tags, consts.HideTag) {
			continue
		}
		if lastActivity(j).After(cutoff) {
			continue
		}
		if h.isActiveInCluster(ctx, j) {
			continue
		}
		if err := h.Store.TagJob(ctx, j.JobID, consts.HideTag); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (h *AutoHider) isActiveInCluster(ctx context.Context, j store.Job) bool {
	if j.ExecutionMode != consts.ExecutionModeK8S {
		return false
	}
	status, err := h.Cluster.GetJob(ctx, h.Namespace, j.JobID)
	if err != nil {
		return false
	}
	return status.Exists && !status.Succeeded && !status.Failed
}

func lastActivity(j store.Job) time.Time {
	if j.CompletionTimestamp != nil {
		return *j.CompletionTimestamp
	}
	if j.StartTimestamp != nil {
		return *j.StartTimestamp
	}
	return j.CreationTimestamp
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
