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

// Package consts holds the cross-cutting constants shared by every
// model-factory component: execution modes, resource defaults, collection
// and namespace names.
package consts

const (
	// ConfigFilePath is the default location of the model-factory config file.
	ConfigFilePath = "~/.model_factory.ini"
)

const (
	PipelinesNamespace = "model-factory-pipelines"
	ModelsNamespace    = "model-factory-models"
	ServicesNamespace  = "model-factory-services"

	DBName                  = "model-factory"
	JobCollection           = "jobs"
	ModelCollection         = "models"
	ProductionModelCollection = "production_models"
	TriggerCollection       = "triggers"
)

const (
	ExecutionModeK8S     = "k8s"
	ExecutionModeLocal   = "local"
	ExecutionModeInplace = "inplace"
)

const (
	DefaultCPURequest     = 1
	DefaultMemoryRequest  = "1G"
	DefaultStorageRequest = "1G"
	DefaultGPURequest     = 0
	DefaultPool           = "any"

	// DefaultTTLAfterFinishedSeconds is the ttl_seconds_after_finished applied
	// when a caller doesn't set one explicitly (12 hours).
	DefaultTTLAfterFinishedSeconds = 43200
)

// TriggerFailureLimit is the number of consecutive failed sweeps after which
// the trigger engine auto-disables a trigger.
const TriggerFailureLimit = 15

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
	JobStatusDeleted   = "deleted"
)

const (
	StageCreated = "CREATED"
	StageStarted = "STARTED"
	StageDone    = "DONE"
)

// HideTag is the display-only tag applied by the auto-hide sweeper.
const HideTag = "hide"

// AutoHideAgeSeconds is the age after which idle jobs and models are hidden.
const AutoHideAgeSeconds = 7 * 24 * 3600

// SyncerMinAgeSeconds is the minimum job age before the execution syncer will
// reconcile its cluster status, to avoid racing the cluster scheduler.
const SyncerMinAgeSeconds = 60

// ChildJobPollIntervalSeconds is the child-job join polling interval.
const ChildJobPollIntervalSeconds = 60

// ActiveTagCooldownSeconds is the ActiveTagJobTrigger cooldown window.
const ActiveTagCooldownSeconds = 300
