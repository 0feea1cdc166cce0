// Copyright 2024 The Model Factory Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package param implements the schema-driven parameter binder: it merges a
// user-supplied JSON object into a nested parameter tree described by a
// Parameter/ParameterGroup schema, enforcing mandatory field coverage.
package param

import (
	"fmt"
	"sort"
	"strings"
)

// Node is either a Parameter leaf or a ParameterGroup branch.
type Node interface {
	isNode()
}

// Parameter is a scalar schema leaf. Mandatory is forced false whenever a
// default is present, mirroring the Python dataclass's
// `mandatory and default is None` behavior.
type Parameter struct {
	Name      string
	Default   interface{}
	Mandatory bool
	Help      string
}

func (Parameter) isNode() {}

// NewParameter builds a Parameter the way the Python constructor does:
// a non-nil default always clears Mandatory.
func NewParameter(name string, def interface{}, mandatory bool, help string) Parameter {
	return Parameter{
		Name:      name,
		Default:   def,
		Mandatory: mandatory && def == nil,
		Help:      help,
	}
}

// Required is a convenience constructor for a mandatory leaf with no default.
func Required(name string) Parameter {
	return NewParameter(name, nil, true, "")
}

// Optional is a convenience constructor for an optional leaf with a default.
func Optional(name string, def interface{}) Parameter {
	return NewParameter(name, def, false, "")
}

// Group is a nested sub-schema.
type Group struct {
	Name       string
	Parameters []Node
}

func (Group) isNode() {}

// Tree is the bound result: a nested map from name to scalar or sub-map.
type Tree = map[string]interface{}

// MissingMandatoryError reports the mandatory leaf paths that the input did
// not fill, sorted alphabetically for determinism.
type MissingMandatoryError struct {
	Paths []string
}

func (e *MissingMandatoryError) Error() string {
	lines := make([]string, len(e.Paths))
	for i, p := range e.Paths {
		lines[i] = "* " + p
	}
	return fmt.Sprintf("the following mandatory json input keys are missing:\n%s", strings.Join(lines, "\n"))
}

// ExtraKeyError reports an input key the schema does not recognize.
type ExtraKeyError struct {
	Path string
}

func (e *ExtraKeyError) Error() string {
	return fmt.Sprintf("input does not take config for key path %q", e.Path)
}

// ShapeMismatchError reports an input value that is a JSON object where the
// schema expects a scalar, or a scalar that collides with a group.
type ShapeMismatchError struct {
	Path string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("input value at key path %q does not match the schema shape", e.Path)
}

// Options controls the two binder knobs documented in spec.md §4.5.
type Options struct {
	// AllowExtraKeys, when false, raises on an input key the schema does
	// not declare. When true, unknown keys are silently skipped.
	AllowExtraKeys bool
	// PassExtraKeys, when true, starts the bound tree from the raw input
	// object (so unknown keys survive in the result) instead of an empty
	// tree built purely from schema defaults. Used by trigger instantiation.
	PassExtraKeys bool
}

// Bind merges input into the default tree produced by schema, per the
// three-step algorithm in spec.md §4.5: build defaults, overlay input,
// assert mandatory coverage.
func Bind(schema []Node, input map[string]interface{}, opts Options) (Tree, error) {
	tree := Tree{}
	if opts.PassExtraKeys {
		for k, v := range input {
			tree[k] = v
		}
	}

	mandatory := map[string]bool{}
	fillDefaults(tree, schema, nil, mandatory, opts.PassExtraKeys)

	filled := map[string]bool{}
	if err := fillInput(tree, input, nil, filled, opts); err != nil {
		return nil, err
	}

	var missing []string
	for path := range mandatory {
		if !filled[path] {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingMandatoryError{Paths: missing}
	}

	return tree, nil
}

func fillDefaults(node Tree, schema []Node, keyPath []string, mandatory map[string]bool, passExtraKeys bool) {
	for _, n := range schema {
		switch p := n.(type) {
		case Parameter:
			if passExtraKeys {
				if _, ok := node[p.Name]; ok {
					continue
				}
			}
			node[p.Name] = p.Default
			if p.Mandatory {
				mandatory[joinPath(keyPath, p.Name)] = true
			}
		case Group:
			if passExtraKeys {
				if existing, ok := node[p.Name]; ok {
					if sub, ok := existing.(Tree); ok {
						fillDefaults(sub, p.Parameters, append(keyPath, p.Name), mandatory, passExtraKeys)
						continue
					}
				}
			}
			sub := Tree{}
			node[p.Name] = sub
			fillDefaults(sub, p.Parameters, append(keyPath, p.Name), mandatory, passExtraKeys)
		}
	}
}

func fillInput(node Tree, input map[string]interface{}, keyPath []string, filled map[string]bool, opts Options) error {
	for k, v := range input {
		path := joinPath(keyPath, k)

		existing, known := node[k]
		if !known {
			if opts.AllowExtraKeys {
				continue
			}
			return &ExtraKeyError{Path: path}
		}

		sub, isMap := v.(map[string]interface{})
		if !isMap {
			node[k] = v
			filled[path] = true
			continue
		}

		existingSub, ok := existing.(Tree)
		if !ok {
			return &ShapeMismatchError{Path: path}
		}
		if err := fillInput(existingSub, sub, append(keyPath, k), filled, opts); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(prefix []string, name string) string {
	if len(prefix) == 0 {
		return name
	}
	return strings.Join(prefix, ".") + "." + name
}
