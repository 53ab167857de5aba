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

package main

import (
	"github.com/ioguix/slony1-engine/internal/confirmcache"
	"github.com/ioguix/slony1-engine/internal/queue"
	"github.com/ioguix/slony1-engine/internal/registry"
	"github.com/ioguix/slony1-engine/internal/scheduler"
	"github.com/ioguix/slony1-engine/internal/types"
	"github.com/ioguix/slony1-engine/internal/worker"
	"github.com/ioguix/slony1-engine/internal/workerconfig"
)

// App bundles the constructed graph main() drives. Present in both the
// wireinject and generated builds since neither side is allowed to
// depend on the other.
type App struct {
	Config    *workerconfig.Config
	Registry  *registry.Registry
	Scheduler *scheduler.Scheduler
	Worker    *worker.Worker
}

// newWorker assembles the Worker for this node. It's a thin adapter
// (cfg -> worker.Config projection) rather than a method on
// workerconfig.Config so that wire can treat it as an ordinary
// provider function.
func newWorker(
	cfg *workerconfig.Config,
	reg *registry.Registry,
	sched *scheduler.Scheduler,
	pool *types.LocalPool,
	q *queue.Queue,
	confirms *confirmcache.Cache,
) *worker.Worker {
	return worker.New(types.NodeID(cfg.NodeID), reg, sched, pool, q, confirms, cfg.WorkerConfig())
}

func newRegistry(cfg *workerconfig.Config) *registry.Registry {
	return registry.New(types.NodeID(cfg.NodeID), cfg.ClusterName, cfg.SchemaName)
}
