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

// Package daemon holds the wiring every long-running model-factory
// process shares: resolving the tracking store, the cluster proxy, the
// object store and the pipeline catalog from one loaded Config, the way
// cmd/root.go resolves a single shared logger before handing it to every
// gtctl command group.
package daemon

import (
	"context"
	"fmt"
	"os"

	"k8s.io/klog/v2"

	"github.com/jiaxincao/modelfactory/pkg/cluster"
	"github.com/jiaxincao/modelfactory/pkg/config"
	"github.com/jiaxincao/modelfactory/pkg/consts"
	"github.com/jiaxincao/modelfactory/pkg/job"
	"github.com/jiaxincao/modelfactory/pkg/model"
	"github.com/jiaxincao/modelfactory/pkg/objectstore"
	"github.com/jiaxincao/modelfactory/pkg/pipeline"
	"github.com/jiaxincao/modelfactory/pipelines/demopipeline"
	"github.com/jiaxincao/modelfactory/pkg/store"
)

// Env is every dependency a daemon main needs, built once at process start
// and threaded explicitly into whichever component (Server, Runner,
// Syncer, AutoHider) that process runs. Env holds no model registry: only
// mf-frontend serves the model registry's routes, and it alone pays the
// cost (and the startup dependency) of dialing the object store — see
// NewModelRegistry.
type Env struct {
	Config    *config.Config
	Store     store.Store
	Cluster   cluster.Cluster
	Catalog   *pipeline.Catalog
	Jobs      *job.Manager
	Namespace string
}

// Build resolves a Config at configPath into an Env. The tracking store
// backend is chosen by MongoDBEndpoint's presence the way the Python
// original's load_config picks a DB driver from the same field: empty
// means an in-memory store is fine for local development, set means a
// real Postgres-backed one (see DESIGN.md's document-store substitution).
func Build(ctx context.Context, configPath string) (*Env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	st, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cl, err := buildCluster()
	if err != nil {
		return nil, err
	}

	catalog := pipeline.NewBuilder()
	demopipeline.Register(catalog)
	frozen := catalog.Freeze()

	namespace := consts.PipelinesNamespace

	return &Env{
		Config:  cfg,
		Store:   st,
		Cluster: cl,
		Catalog: frozen,
		Jobs: &job.Manager{
			Store:          st,
			Cluster:        cl,
			Catalog:        frozen,
			DockerRegistry: cfg.DockerRegistry,
			Namespace:      namespace,
		},
		Namespace: namespace,
	}, nil
}

// NewModelRegistry dials the object store and builds the model registry
// over st. Split from Build because only mf-frontend needs it: the
// trigger runner, execution syncer and auto-hide sweeper never touch
// model artifacts and shouldn't fail to start over an unreachable S3
// endpoint they'd never use.
func NewModelRegistry(ctx context.Context, cfg *config.Config, st store.Store) (*model.Registry, error) {
	blobs, err := objectstore.NewS3(ctx, cfg.S3Endpoint, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.S3Bucket, true)
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}
	return model.NewRegistry(st, blobs), nil
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.MongoDBEndpoint == "" {
		return store.NewMemory(), nil
	}
	return store.NewPG(ctx, store.PGOptions{
		Addr:     cfg.MongoDBEndpoint,
		Database: consts.DBName,
		User:     cfg.AWSAccessKeyID,
		Password: cfg.AWSSecretAccessKey,
	})
}

// buildCluster resolves the in-cluster kubeconfig when running as a pod
// (MF_EXECUTION_ENVIRONMENT=k8s, the default) and falls back to the local
// kubeconfig otherwise, mirroring config.ExecutionEnvironment's split.
func buildCluster() (cluster.Cluster, error) {
	// client-go logs its own retries and deprecation warnings through
	// klog; route them to stderr instead of klog's unbuffered default.
	klog.SetOutput(os.Stderr)

	if config.ExecutionEnvironment() == "k8s" {
		if _, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount/token"); err == nil {
			return cluster.NewK8sInCluster()
		}
	}
	return cluster.NewK8s("")
}
