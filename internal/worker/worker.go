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

package worker

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ioguix/slony1-engine/internal/confirmcache"
	"github.com/ioguix/slony1-engine/internal/queue"
	"github.com/ioguix/slony1-engine/internal/stopper"
	"github.com/ioguix/slony1-engine/internal/types"
)

// Config bundles the Worker's tunables.
type Config struct {
	// LinesPerProvider is how many fresh Lines a new ProviderContext
	// contributes to the shared pool on creation.
	LinesPerProvider int

	// DefaultConnRetry is used when a provider has no configured retry
	// interval.
	DefaultConnRetry time.Duration
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() Config {
	return Config{
		LinesPerProvider: 4 * defaultFetchSize,
		DefaultConnRetry: 10 * time.Second,
	}
}

// Worker drives the state machine described in spec.md section 4.2:
// one instance per remote origin node this process replicates from.
type Worker struct {
	origin    types.NodeID
	registry  types.Registry
	scheduler types.Scheduler
	local     *types.LocalPool
	queue     *queue.Queue
	confirms  *confirmcache.Cache
	config    Config

	group *workgroup

	providersMu sync.Mutex
	providers   map[types.NodeID]*providerContext

	checkConfig    bool
	lastGeneration uint64
}

// New constructs a Worker for the given origin node.
func New(
	origin types.NodeID,
	registry types.Registry,
	scheduler types.Scheduler,
	local *types.LocalPool,
	q *queue.Queue,
	confirms *confirmcache.Cache,
	cfg Config,
) *Worker {
	return &Worker{
		origin:    origin,
		registry:  registry,
		scheduler: scheduler,
		local:     local,
		queue:     q,
		confirms:  confirms,
		config:    cfg,
		group:     newWorkgroup(),
		providers: make(map[types.NodeID]*providerContext),
		// checkConfig starts true so the first loop iteration reconciles.
		checkConfig: true,
	}
}

// Queue exposes the Worker's inbound message queue so listener tasks
// can enqueue events, confirms, and wakeups (spec.md section 6).
func (w *Worker) Queue() *queue.Queue { return w.queue }

// Run drives the Worker's main loop (spec.md section 4.2). It returns
// when a configuration check finds the scheduler status not OK, the
// origin node inactive, or its worker-status not RUNNING, or when
// processing an event fails. Those checks run on the first iteration
// and after each WAKEUP. The loop does not check ctx, and canceling
// ctx does not wake a Dequeue that is waiting for a message. On exit
// it reconciles in cleanup mode, releasing every provider and helper.
func (w *Worker) Run(ctx context.Context) error {
	stop := stopper.WithContext(ctx)
	defer func() {
		w.reconcile(stop, true /* cleanup */)
		_ = stop.StopAndWait()
	}()

	for {
		if w.checkConfig {
			if status := w.scheduler.Status(); status != types.StatusOK {
				log.WithField("origin", w.origin).Info("scheduler requested exit, stopping worker")
				return nil
			}
			if active, ok := w.registry.FindNode(w.origin); !ok || !active {
				log.WithField("origin", w.origin).Info("origin node no longer active, stopping worker")
				return nil
			}
			if status, ok := w.registry.WorkerStatus(w.origin); !ok || status != types.WorkerRunning {
				log.WithField("origin", w.origin).Info("origin node's worker-status is not RUNNING, stopping worker")
				return nil
			}
			if gen := w.registry.Generation(); gen != w.lastGeneration {
				w.reconcile(stop, false)
				w.lastGeneration = gen
			}
			w.checkConfig = false
		}

		msg := w.queue.Dequeue()
		switch msg.Kind {
		case queue.KindWakeup:
			w.checkConfig = true
			continue
		case queue.KindConfirm:
			w.forwardConfirm(ctx, msg.Confirm)
			continue
		case queue.KindEvent:
			if err := w.processEvent(ctx, stop, msg.Event); err != nil {
				log.WithError(err).WithField("origin", w.origin).Error("event processing failed, stopping worker")
				return err
			}
		}
	}
}
