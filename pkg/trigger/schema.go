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

package trigger

import "github.com/jiaxincao/modelfactory/pkg/param"

// Each concrete trigger binds its input_json against its own schema with
// param.Bind(schema, input, Options{PassExtraKeys: true}), matching the
// Python trigger_init decorator's construct_params(allow_extra_keys=False,
// pass_extra_keys=True). The helpers below read the bound param.Tree into
// plain Go values.

func str(t param.Tree, key string) string {
	if v, ok := t[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func strPtr(t param.Tree, key string) *string {
	if v, ok := t[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return &s
		}
	}
	return nil
}

func f64(t param.Tree, key string) float64 {
	if v, ok := t[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	}
	return 0
}

func i64(t param.Tree, key string) int64 {
	return int64(f64(t, key))
}

func intv(t param.Tree, key string) int {
	return int(f64(t, key))
}

func i64Ptr(t param.Tree, key string) *int64 {
	if v, ok := t[key]; ok && v != nil {
		if n, ok := v.(float64); ok {
			x := int64(n)
			return &x
		}
	}
	return nil
}

func strSlice(t param.Tree, key string) []string {
	v, ok := t[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapv(t param.Tree, key string) map[string]interface{} {
	if v, ok := t[key]; ok {
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
	}
	return map[string]interface{}{}
}
