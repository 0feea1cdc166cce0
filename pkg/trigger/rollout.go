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
	"context"
	"fmt"
	"time"

	"github.com/jiaxincao/modelfactory/pkg/param"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

func rolloutSchema() []param.Node {
	return []param.Node{
		param.Required("model_name"),
		param.Required("deployment_namespace"),
		param.Required("deployment_name"),
		param.Optional("initial_deploy", false),
		param.Optional("at_channel", false),
	}
}

// ModelServingRolloutTrigger restarts a serving deployment whenever the
// production pointer for model_name moves to a new model id (spec.md
// §4.4). It never acts on the very first sweep unless initial_deploy is
// set, but always absorbs whatever model id is currently promoted so a
// later promotion is detected as a change rather than the starting state.
type ModelServingRolloutTrigger struct {
	Base

	modelName           string
	deploymentNamespace string
	deploymentName       string
	initialDeploy        bool
	atChannel             bool

	currentModelID string
	nextModelID    string
}

func NewModelServingRolloutTrigger(rec store.TriggerRecord, deps Deps) (*ModelServingRolloutTrigger, error) {
	tree, err := bindTriggerInput(rolloutSchema(), rec.InputJSON)
	if err != nil {
		return nil, err
	}
	return &ModelServingRolloutTrigger{
		Base:                 Base{Record: rec, Deps: deps},
		modelName:            str(tree, "model_name"),
		deploymentNamespace:  str(tree, "deployment_namespace"),
		deploymentName:       str(tree, "deployment_name"),
		initialDeploy:        boolv(tree, "initial_deploy"),
		atChannel:            boolv(tree, "at_channel"),
	}, nil
}

func (t *ModelServingRolloutTrigger) Exec(ctx context.Context) error { return execCondition(ctx, t) }

func (t *ModelServingRolloutTrigger) IsReady(ctx context.Context) (bool, error) {
	ptr, err := t.Deps.Store.GetProductionPointer(ctx, t.modelName)
	if err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	t.currentModelID = t.metaString("model_id")
	t.nextModelID = ptr.ModelID

	if t.currentModelID == "" {
		if !t.initialDeploy {
			// Absorb the currently-promoted model without acting, so the
			// next promotion is what triggers the first restart.
			return false, t.updateActionMetadata(ctx, map[string]interface{}{"model_id": t.nextModelID})
		}
		return true, nil
	}

	return t.currentModelID != t.nextModelID, nil
}

func (t *ModelServingRolloutTrigger) DoExec(ctx context.Context) error {
	if err := t.Deps.Cluster.RestartDeployment(ctx, t.deploymentNamespace, t.deploymentName); err != nil {
		return fmt.Errorf("restart deployment %s/%s: %w", t.deploymentNamespace, t.deploymentName, err)
	}

	err := t.Deps.Store.AppendProductionEvent(ctx, t.modelName, store.Event{
		Timestamp: time.Now().UTC(),
		Type:      "trigger_deployment_restart",
		Metadata: map[string]interface{}{
			"deployment_namespace": t.deploymentNamespace,
			"deployment_name":      t.deploymentName,
			"model_id":             t.nextModelID,
		},
	})
	if err != nil {
		return err
	}

	return t.updateActionMetadata(ctx, map[string]interface{}{"model_id": t.nextModelID})
}

func boolv(t param.Tree, key string) bool {
	if v, ok := t[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
