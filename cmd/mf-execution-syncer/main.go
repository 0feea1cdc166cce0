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

// Command mf-execution-syncer reconciles observed cluster job state back
// into the tracking store (spec.md §4.3).
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jiaxincao/modelfactory/pkg/consts"
	"github.com/jiaxincao/modelfactory/pkg/daemon"
	"github.com/jiaxincao/modelfactory/pkg/job"
	"github.com/jiaxincao/modelfactory/pkg/zaplog"
)

func main() {
	var (
		configPath  string
		interval    time.Duration
		development bool
	)
	flag.StringVar(&configPath, "config", consts.ConfigFilePath, "path to the model-factory config file")
	flag.DurationVar(&interval, "interval", 30*time.Second, "sync interval")
	flag.BoolVar(&development, "development", false, "use human-readable console logging instead of JSON")
	flag.Parse()

	log, err := zaplog.New("mf-execution-syncer", development)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := daemon.Build(ctx, configPath)
	if err != nil {
		log.Fatal("build environment", zap.Error(err))
	}

	syncer := &job.Syncer{
		Store:     env.Store,
		Cluster:   env.Cluster,
		Namespace: env.Namespace,
	}

	log.Info("starting sync loop", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := syncer.SyncOnce(ctx); err != nil {
			log.Error("sync", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
		}
	}
}
