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

import (
	"encoding/json"
	"fmt"

	"github.com/jiaxincao/modelfactory/pkg/param"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

// Trigger classes, the discriminator stored in TriggerRecord.TriggerClass.
const (
	ClassCron            = "cron"
	ClassBackfillCron    = "backfill_cron"
	ClassActiveTagJob    = "active_tag_job"
	ClassModelServingRollout = "model_serving_rollout"
)

// New instantiates the concrete trigger named by rec.TriggerClass, binding
// rec.InputJSON against that variant's own schema.
func New(rec store.TriggerRecord, deps Deps) (Trigger, error) {
	switch rec.TriggerClass {
	case ClassCron:
		return NewCronTrigger(rec, deps)
	case ClassBackfillCron:
		return NewBackfillCronTrigger(rec, deps)
	case ClassActiveTagJob:
		return NewActiveTagJobTrigger(rec, deps)
	case ClassModelServingRollout:
		return NewModelServingRolloutTrigger(rec, deps)
	default:
		return nil, fmt.Errorf("unknown trigger class %q", rec.TriggerClass)
	}
}

// bindTriggerInput parses inputJSON and binds it against schema with
// allow_extra_keys=false, pass_extra_keys=true, mirroring the Python
// trigger_init decorator exactly.
func bindTriggerInput(schema []param.Node, inputJSON string) (param.Tree, error) {
	if inputJSON == "" {
		inputJSON = "{}"
	}
	var input map[string]interface{}
	if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
		return nil, fmt.Errorf("parse trigger input_json: %w", err)
	}
	return param.Bind(schema, input, param.Options{PassExtraKeys: true})
}
