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

// Package zaplog builds the structured logger the long-running daemons
// (cmd/mf-frontend, cmd/mf-trigger-runner, cmd/mf-execution-syncer,
// cmd/mf-autohide) share. The one-shot CLI's pkg/logger is the wrong tool
// here: a daemon's output gets scraped by log collectors, so it needs
// leveled, machine-parseable fields rather than a colored one-line message.
package zaplog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the service's root logger. development=true switches to
// console-encoded, human-readable output (local iteration); the default
// is JSON-encoded production output. component is attached to every log
// line so multiplexed daemon output stays attributable.
func New(component string, development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("component", component)), nil
}
