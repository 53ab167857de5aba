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
	"sync/atomic"
	"time"

	"github.com/ioguix/slony1-engine/internal/types"
)

// fakeRegistry is a minimal, in-memory types.Registry used by tests
// that exercise Worker.reconcile and the chaos decorator without a
// real database, mirroring the role of the teacher's in-memory test
// doubles for its Dialect/TargetPool collaborators.
type fakeRegistry struct {
	self    types.NodeID
	cluster string
	schema  string

	mu           sync.Mutex
	gen          uint64
	nodes        map[types.NodeID]bool
	workerStatus map[types.NodeID]types.WorkerStatus
	sets         map[types.SetID]types.Set
	subs         map[types.NodeID][]types.Subscription
	providers    map[types.NodeID]types.ProviderConfig
	tables       map[types.TableID]string
	setTables    map[types.SetID][]types.TableID
}

func newFakeRegistry(self types.NodeID) *fakeRegistry {
	return &fakeRegistry{
		self:         self,
		nodes:        map[types.NodeID]bool{self: true},
		workerStatus: map[types.NodeID]types.WorkerStatus{self: types.WorkerRunning},
		sets:         map[types.SetID]types.Set{},
		subs:         map[types.NodeID][]types.Subscription{},
		providers:    map[types.NodeID]types.ProviderConfig{},
		tables:       map[types.TableID]string{},
		setTables:    map[types.SetID][]types.TableID{},
	}
}

var _ types.Registry = (*fakeRegistry)(nil)

func (r *fakeRegistry) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

func (r *fakeRegistry) bump() {
	r.mu.Lock()
	r.gen++
	r.mu.Unlock()
}

func (r *fakeRegistry) SelfID() types.NodeID { return r.self }

func (r *fakeRegistry) FindNode(id types.NodeID) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active, ok := r.nodes[id]
	return active, ok
}

func (r *fakeRegistry) WorkerStatus(id types.NodeID) (types.WorkerStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.workerStatus[id]
	return status, ok
}

func (r *fakeRegistry) Set(id types.SetID) (types.Set, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sets[id]
	return s, ok
}

func (r *fakeRegistry) Subscriptions(receiver types.NodeID) []types.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Subscription(nil), r.subs[receiver]...)
}

func (r *fakeRegistry) Provider(id types.NodeID) (types.ProviderConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.providers[id]
	return cfg, ok
}

func (r *fakeRegistry) ClusterName() string { return r.cluster }

func (r *fakeRegistry) SchemaQualifier() string { return r.schema }

func (r *fakeRegistry) ApplyConfigEvent(ev types.Event) error {
	return nil
}

func (r *fakeRegistry) TableFQName(_ context.Context, id types.TableID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tables[id], nil
}

func (r *fakeRegistry) TablesForSet(_ context.Context, set types.SetID) ([]types.TableID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setTables[set], nil
}

// setSubscriptions replaces the active subscription list for receiver
// and bumps the generation counter, standing in for a config event
// that would otherwise have produced this registry state.
func (r *fakeRegistry) setSubscriptions(receiver types.NodeID, subs []types.Subscription) {
	r.mu.Lock()
	r.subs[receiver] = subs
	r.mu.Unlock()
	r.bump()
}

// fakeScheduler is a types.Scheduler whose status starts OK (zero
// value) and whose Sleep waits for d or ctx, whichever ends first,
// used by tests that need to satisfy Worker's constructor.
type fakeScheduler struct {
	status atomic.Int32
}

var _ types.Scheduler = (*fakeScheduler)(nil)

func (s *fakeScheduler) Status() types.SchedulerStatus {
	return types.SchedulerStatus(s.status.Load())
}

func (s *fakeScheduler) Sleep(ctx context.Context, _ types.NodeID, d time.Duration) types.SchedulerStatus {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
	return s.Status()
}
