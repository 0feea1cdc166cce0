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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jiaxincao/modelfactory/pkg/store"
)

var errArchivedLogUnavailable = errors.New("archived job log storage is not configured")

// parseFilterParam decodes the "filter" query parameter's JSON object into
// a store.Filter, translating the wire operators {"$in": [...]},
// {"$nin": [...]}, {"$all": [...]} into their typed store.In/NotIn/All
// equivalents. This is the single parse site get_info_for_jobs and
// list_models both go through — spec.md §9's "parse the filter once, at
// the edge" fix.
func parseFilterParam(raw string) (store.Filter, error) {
	if raw == "" {
		return store.Filter{}, nil
	}

	var wire map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}

	out := store.Filter{}
	for field, cond := range wire {
		op, ok := cond.(map[string]interface{})
		if !ok {
			out[field] = cond
			continue
		}
		switch {
		case op["$in"] != nil:
			out[field] = store.In{Values: toSlice(op["$in"])}
		case op["$nin"] != nil:
			out[field] = store.NotIn{Values: toSlice(op["$nin"])}
		case op["$all"] != nil:
			out[field] = store.All{Values: toSlice(op["$all"])}
		default:
			out[field] = cond
		}
	}
	return out, nil
}

func toSlice(v interface{}) []interface{} {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	return arr
}

// parseProjectionParam decodes the "projection" query parameter's JSON
// object, carrying at most one of "include"/"exclude", per spec.md §4.1.
func parseProjectionParam(raw string) (store.Projection, error) {
	if raw == "" {
		return store.Projection{}, nil
	}

	var wire struct {
		Include []string `json:"include"`
		Exclude []string `json:"exclude"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return store.Projection{}, fmt.Errorf("parse projection: %w", err)
	}
	if len(wire.Include) > 0 && len(wire.Exclude) > 0 {
		return store.Projection{}, errors.New("projection must be inclusive or exclusive, not both")
	}
	return store.Projection{Include: wire.Include, Exclude: wire.Exclude}, nil
}
