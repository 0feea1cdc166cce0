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

// Filter is the find_jobs filter grammar from spec.md §4.1: each entry
// is either a bare equality value, or one of the three operators below
// (In and NotIn apply to scalar or array fields, All to array fields).
type Filter map[string]interface{}

// In matches documents whose field is one of values ($in).
type In struct{ Values []interface{} }

// NotIn matches documents whose field is none of values ($nin).
type NotIn struct{ Values []interface{} }

// All matches documents whose array field contains every one of values
// ($all) — used for tag intersection queries.
type All struct{ Values []interface{} }

// Projection selects which fields find_jobs returns. Exactly one of
// Include/Exclude may be non-empty, per spec.md §4.1 ("inclusive or
// exclusive, but not both").
type Projection struct {
	Include []string
	Exclude []string
}

func matchValue(field interface{}, cond interface{}) bool {
	switch c := cond.(type) {
	case In:
		return containsAny(field, c.Values)
	case NotIn:
		return !containsAny(field, c.Values)
	case All:
		return containsAll(field, c.Values)
	default:
		return equalValue(field, cond)
	}
}

func equalValue(a, b interface{}) bool {
	return a == b
}

func containsAny(field interface{}, values []interface{}) bool {
	for _, v := range values {
		if equalValue(field, v) {
			return true
		}
		if arr, ok := field.([]string); ok {
			for _, item := range arr {
				if equalValue(item, v) {
					return true
				}
			}
		}
	}
	return false
}

func containsAll(field interface{}, values []interface{}) bool {
	arr, ok := field.([]string)
	if !ok {
		return false
	}
	set := map[string]bool{}
	for _, item := range arr {
		set[item] = true
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok || !set[s] {
			return false
		}
	}
	return true
}

// matchJob reports whether job satisfies every clause in f. Field names are
// the lower_snake_case document keys from spec.md §3 (job_id, owner, tags,
// status, pipeline_name, pool, execution_mode).
func matchJob(j *Job, f Filter) bool {
	for field, cond := range f {
		var value interface{}
		switch field {
		case "job_id":
			value = j.JobID
		case "parent_job_id":
			value = j.ParentJobID
		case "owner":
			value = j.Owner
		case "pipeline_name":
			value = j.PipelineName
		case "pool":
			value = j.Pool
		case "execution_mode":
			value = j.ExecutionMode
		case "status":
			value = string(j.Status)
		case "tags":
			value = j.Tags
		case "archived":
			value = j.Archived
		default:
			continue
		}
		if !matchValue(value, cond) {
			return false
		}
	}
	return true
}

func applyProjection(j Job, p Projection) Job {
	if len(p.Include) == 0 && len(p.Exclude) == 0 {
		return j
	}
	if len(p.Include) > 0 {
		keep := map[string]bool{}
		for _, f := range p.Include {
			keep[f] = true
		}
		return projectInclude(j, keep)
	}
	drop := map[string]bool{}
	for _, f := range p.Exclude {
		drop[f] = true
	}
	return projectExclude(j, drop)
}

// projectInclude and projectExclude operate on the subset of fields that
// find_jobs callers in this codebase actually project on. projectInclude
// always keeps job_id and keeps whichever of status, output, events,
// exception and tags are listed; every other field gets its zero value.
// projectExclude clears whichever of output, events and exception are
// listed; every other field keeps its original value.
func projectInclude(j Job, keep map[string]bool) Job {
	out := Job{JobID: j.JobID}
	if keep["status"] {
		out.Status = j.Status
	}
	if keep["output"] {
		out.Output = j.Output
	}
	if keep["events"] {
		out.Events = j.Events
	}
	if keep["exception"] {
		out.Exception = j.Exception
	}
	if keep["tags"] {
		out.Tags = j.Tags
	}
	return out
}

func projectExclude(j Job, drop map[string]bool) Job {
	out := j
	if drop["output"] {
		out.Output = nil
	}
	if drop["events"] {
		out.Events = nil
	}
	if drop["exception"] {
		out.Exception = ""
	}
	return out
}
