// Copyright 2023 The Cockroach Authors
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
//
// SPDX-License-Identifier: Apache-2.0

// Command slon runs the remote-worker replication core for one node:
// it dials the local database, builds the runtime registry, and drives
// a Worker against it until asked to stop.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	log "github.com/sirupsen/logrus"

	"github.com/ioguix/slony1-engine/internal/stopper"
	"github.com/ioguix/slony1-engine/internal/workerconfig"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("slon exited with error")
	}
}

func run() error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg := &workerconfig.Config{}
	cfg.Bind(pflag.CommandLine)
	pflag.Parse()

	if err := cfg.Preflight(); err != nil {
		return err
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx := stopper.WithContext(rootCtx)

	app, cleanup, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	serveMetrics(ctx, cfg.MetricsListenAddr)

	log.WithField("node", cfg.NodeID).WithField("cluster", cfg.ClusterName).Info("starting worker")
	app.Worker.Queue().EnqueueWakeup()
	return app.Worker.Run(ctx)
}

// serveMetrics starts the Prometheus HTTP endpoint in a tracked
// goroutine, grounded on the teacher's prometheus/client_golang wiring
// in its server package.
func serveMetrics(ctx *stopper.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	ctx.Go(func() error {
		<-ctx.Stopping()
		return srv.Close()
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("metrics server exited")
		}
	}()
}
