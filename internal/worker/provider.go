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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ioguix/slony1-engine/internal/ident"
	"github.com/ioguix/slony1-engine/internal/stdpool"
	"github.com/ioguix/slony1-engine/internal/stopper"
	"github.com/ioguix/slony1-engine/internal/types"
)

// dialMissingConnInfoRetry is the fixed delay spec.md section 4.4
// assigns when a provider has no configured connection string at all,
// distinct from pa_connretry's role for an actual failed dial attempt.
const dialMissingConnInfoRetry = 10 * time.Second

// providerSet is the {set_id, sub_forward} pair spec.md section 3
// attaches to a ProviderContext.
type providerSet struct {
	SetID   types.SetID
	Forward bool
}

// providerContext is the runtime state for one provider node feeding
// this worker (spec.md section 3's "Provider Context"). It exists only
// while at least one active subscription uses it.
type providerContext struct {
	node   types.NodeID
	config types.ProviderConfig
	sets   []providerSet

	conn       *types.ProviderConn
	closeConn  func()
	helper     *helper
	helperStop *stopper.Context
}

// reconcile brings the set of ProviderContexts into agreement with the
// registry, per spec.md section 4.3's three-step algorithm. cleanup,
// when true, skips step 2 (Repopulate) so every provider is torn down;
// it is called once on Worker exit.
func (w *Worker) reconcile(ctx *stopper.Context, cleanup bool) {
	// Step 1: Clear. Acquire every helper's lock up front (held across
	// the whole transition) and drop each provider's set-list.
	w.providersMu.Lock()
	providers := make([]*providerContext, 0, len(w.providers))
	for _, pc := range w.providers {
		providers = append(providers, pc)
	}
	w.providersMu.Unlock()

	for _, pc := range providers {
		pc.helper.mu.Lock()
	}
	for _, pc := range providers {
		pc.sets = nil
	}

	// Step 2: Repopulate, skipped in cleanup mode.
	if !cleanup {
		for _, sub := range w.registry.Subscriptions(w.registry.SelfID()) {
			if !sub.Active {
				continue
			}
			pc := w.findOrCreateProvider(ctx, sub.Provider)
			pc.sets = append(pc.sets, providerSet{SetID: sub.SetID, Forward: sub.Forward})
		}
	}

	// Step 3: Reap providers whose set-list is now empty, and redial
	// providers whose connection string changed.
	w.providersMu.Lock()
	for id, pc := range w.providers {
		if len(pc.sets) > 0 {
			if cfg, ok := w.registry.Provider(id); ok && cfg.ConnInfo != pc.config.ConnInfo {
				pc.config = cfg
				if pc.conn != nil {
					pc.closeConn()
					pc.conn = nil
				}
			}
			continue
		}

		pc.helper.status = helperExit
		pc.helper.cond.Broadcast()
		pc.helper.mu.Unlock()
		if pc.helperStop != nil {
			_ = pc.helperStop.StopAndWait()
		}
		if pc.conn != nil {
			pc.closeConn()
		}
		delete(w.providers, id)
		log.WithField("provider", id).Info("provider context reaped, no active subscriptions remain")
	}
	w.providersMu.Unlock()

	// Unlock remaining (surviving) helpers so they can wait for work.
	for _, pc := range providers {
		if _, ok := w.providers[pc.node]; ok {
			pc.helper.mu.Unlock()
		}
	}
}

// findOrCreateProvider returns the existing ProviderContext for node,
// or creates one: allocating the context, spawning its Helper in IDLE
// state, contributing fresh Lines to the shared pool, and recording
// the provider's connection info. It takes providersMu itself, so the
// caller must not hold it; reconcile calls it while holding every
// existing helper's lock.
func (w *Worker) findOrCreateProvider(ctx *stopper.Context, id types.NodeID) *providerContext {
	w.providersMu.Lock()
	if pc, ok := w.providers[id]; ok {
		w.providersMu.Unlock()
		return pc
	}
	w.providersMu.Unlock()

	cfg, _ := w.registry.Provider(id)

	h := newHelper(id, w.registry.SchemaQualifier(), w.group, nil, ident.NewFQNameCache(w.registry))
	pc := &providerContext{
		node:       id,
		config:     cfg,
		helper:     h,
		helperStop: stopper.WithContext(ctx),
	}
	pc.helperStop.Go(func() error {
		h.run(pc.helperStop)
		return nil
	})

	w.group.growPool(w.config.LinesPerProvider)

	w.providersMu.Lock()
	w.providers[id] = pc
	w.providersMu.Unlock()

	log.WithField("provider", id).Info("provider context created")
	return pc
}

// dialMissing connects any ProviderContext in the current workgroup
// without a live connection, per spec.md section 4.4's preparation
// step. It returns ok=false if any dial should be retried rather than
// proceeding to dispatch, along with the delay to wait before retrying:
// a flat 10s if the connection string itself is missing, or
// pa_connretry (via retryInterval) if the dial attempt failed.
func (w *Worker) dialMissing(
	ctx context.Context, stop *stopper.Context, providers []*providerContext,
) (retryAfter time.Duration, ok bool) {
	for _, pc := range providers {
		if pc.conn != nil {
			continue
		}
		if pc.config.ConnInfo == "" {
			log.WithField("provider", pc.node).Warn("provider connection string missing, retrying in 10s")
			return dialMissingConnInfoRetry, false
		}
		conn, closeFn, err := stdpool.OpenProviderConn(stop, pc.config, false)
		if err != nil {
			log.WithError(err).WithField("provider", pc.node).Warn("could not dial provider, will retry")
			return pc.retryInterval(w.config), false
		}
		pc.conn = conn
		pc.closeConn = closeFn
		pc.helper.conn = conn
	}
	return 0, true
}
