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

// Command mf-frontend serves spec.md §6's HTTP surface: the one process
// the mf CLI's job, model, pipeline and trigger commands talk to. The
// trigger runner does not go through it; it uses the tracking store directly.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jiaxincao/modelfactory/pkg/consts"
	"github.com/jiaxincao/modelfactory/pkg/daemon"
	"github.com/jiaxincao/modelfactory/pkg/frontend"
	"github.com/jiaxincao/modelfactory/pkg/zaplog"
)

func main() {
	var (
		configPath  string
		addr        string
		development bool
	)
	flag.StringVar(&configPath, "config", consts.ConfigFilePath, "path to the model-factory config file")
	flag.StringVar(&addr, "addr", ":8080", "address to serve on")
	flag.BoolVar(&development, "development", false, "use human-readable console logging instead of JSON")
	flag.Parse()

	log, err := zaplog.New("mf-frontend", development)
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

	models, err := daemon.NewModelRegistry(ctx, env.Config, env.Store)
	if err != nil {
		log.Fatal("build model registry", zap.Error(err))
	}

	srv := &frontend.Server{
		Store:     env.Store,
		Cluster:   env.Cluster,
		Jobs:      env.Jobs,
		Models:    models,
		Namespace: env.Namespace,
	}

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown", zap.Error(err))
		}
	}()

	log.Info("listening", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("serve", zap.Error(err))
	}
	os.Exit(0)
}
