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
	"math/rand"

	"github.com/pkg/errors"

	"github.com/ioguix/slony1-engine/internal/types"
)

// WithChaos makes ApplyConfigEvent, TableFQName and TablesForSet fail
// with errChaos at probability prob, adapted from the
// teacher's internal/source/logical.WithChaos decorator. Here it
// wraps a types.Registry instead of a CDC Dialect, so the fault
//-injection tests named by the testable properties around
// reconcile/apply error handling (spec.md section 8, properties
// touching "unrecoverable local DB error" and provider dial failure)
// can exercise Worker.Run's error paths without a real flaky database.
func WithChaos(delegate types.Registry, prob float32) types.Registry {
	if prob <= 0 {
		return delegate
	}
	return &chaosRegistry{delegate: delegate, prob: prob}
}

type chaosRegistry struct {
	delegate types.Registry
	prob     float32
}

var _ types.Registry = (*chaosRegistry)(nil)

func (r *chaosRegistry) Generation() uint64 { return r.delegate.Generation() }

func (r *chaosRegistry) SelfID() types.NodeID { return r.delegate.SelfID() }

func (r *chaosRegistry) FindNode(id types.NodeID) (bool, bool) { return r.delegate.FindNode(id) }

func (r *chaosRegistry) WorkerStatus(id types.NodeID) (types.WorkerStatus, bool) {
	return r.delegate.WorkerStatus(id)
}

func (r *chaosRegistry) Set(id types.SetID) (types.Set, bool) { return r.delegate.Set(id) }

func (r *chaosRegistry) Subscriptions(receiver types.NodeID) []types.Subscription {
	return r.delegate.Subscriptions(receiver)
}

func (r *chaosRegistry) Provider(id types.NodeID) (types.ProviderConfig, bool) {
	return r.delegate.Provider(id)
}

func (r *chaosRegistry) ClusterName() string { return r.delegate.ClusterName() }

func (r *chaosRegistry) SchemaQualifier() string { return r.delegate.SchemaQualifier() }

func (r *chaosRegistry) ApplyConfigEvent(ev types.Event) error {
	if rand.Float32() < r.prob {
		return doChaos("ApplyConfigEvent")
	}
	return r.delegate.ApplyConfigEvent(ev)
}

func (r *chaosRegistry) TableFQName(ctx context.Context, id types.TableID) (string, error) {
	if rand.Float32() < r.prob {
		return "", doChaos("TableFQName")
	}
	return r.delegate.TableFQName(ctx, id)
}

func (r *chaosRegistry) TablesForSet(ctx context.Context, set types.SetID) ([]types.TableID, error) {
	if rand.Float32() < r.prob {
		return nil, doChaos("TablesForSet")
	}
	return r.delegate.TablesForSet(ctx, set)
}

func doChaos(msg string) error {
	return errors.WithMessage(errChaos, msg)
}

var errChaos = errors.New("chaos")
