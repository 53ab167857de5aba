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

// Package registry provides an in-memory implementation of
// types.Registry: the runtime-configuration collaborator named in
// spec.md as "out of scope" (nodes, paths, sets, subscriptions). A
// production deployment would back this with the replication
// catalog's own tables; this implementation is what Worker is built
// and tested against.
package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ioguix/slony1-engine/internal/types"
)

// nodeState is the per-node record backing both FindNode's active-flag
// and WorkerStatus's worker-status attribute (spec.md section 3).
type nodeState struct {
	active       bool
	workerStatus types.WorkerStatus
}

// Registry is a concurrency-safe, in-memory types.Registry.
type Registry struct {
	self    types.NodeID
	cluster string
	schema  string

	generation atomic.Uint64

	mu            sync.RWMutex
	nodes         map[types.NodeID]nodeState
	subscriptions []types.Subscription
	providers     map[types.NodeID]types.ProviderConfig
	sets          map[types.SetID]types.Set
	setTables     map[types.SetID][]types.TableID
	tableNames    map[types.TableID]string
}

var _ types.Registry = (*Registry)(nil)

// New constructs a Registry for node self, within the named cluster.
func New(self types.NodeID, cluster, schema string) *Registry {
	return &Registry{
		self:       self,
		cluster:    cluster,
		schema:     schema,
		nodes:      map[types.NodeID]nodeState{self: {active: true, workerStatus: types.WorkerRunning}},
		providers:  map[types.NodeID]types.ProviderConfig{},
		sets:       map[types.SetID]types.Set{},
		setTables:  map[types.SetID][]types.TableID{},
		tableNames: map[types.TableID]string{},
	}
}

// Generation implements types.Registry.
func (r *Registry) Generation() uint64 { return r.generation.Load() }

func (r *Registry) bumpGeneration() { r.generation.Add(1) }

// SelfID implements types.Registry.
func (r *Registry) SelfID() types.NodeID { return r.self }

// FindNode implements types.Registry.
func (r *Registry) FindNode(id types.NodeID) (active bool, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.nodes[id]
	return st.active, ok
}

// WorkerStatus implements types.Registry.
func (r *Registry) WorkerStatus(id types.NodeID) (types.WorkerStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.nodes[id]
	return st.workerStatus, ok
}

// Set implements types.Registry.
func (r *Registry) Set(id types.SetID) (types.Set, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sets[id]
	return s, ok
}

// Subscriptions implements types.Registry.
func (r *Registry) Subscriptions(receiver types.NodeID) []types.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.Subscription
	for _, s := range r.subscriptions {
		if s.Active && s.Receiver == receiver {
			out = append(out, s)
		}
	}
	return out
}

// Provider implements types.Registry.
func (r *Registry) Provider(id types.NodeID) (types.ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// ClusterName implements types.Registry.
func (r *Registry) ClusterName() string { return r.cluster }

// SchemaQualifier implements types.Registry.
func (r *Registry) SchemaQualifier() string { return r.schema }

// PutProvider registers or updates a provider's connection info. Test
// and bootstrap helper, not part of types.Registry.
func (r *Registry) PutProvider(cfg types.ProviderConfig) {
	r.mu.Lock()
	r.providers[cfg.NodeID] = cfg
	r.mu.Unlock()
	r.bumpGeneration()
}

// SetWorkerStatus sets a node's worker-status attribute. Test and
// bootstrap helper, not part of types.Registry: nothing in the
// configuration-event table mutates this attribute, so it is only
// ever changed out of band (an operator request to pause a node's
// worker without deactivating the node itself).
func (r *Registry) SetWorkerStatus(id types.NodeID, status types.WorkerStatus) {
	r.mu.Lock()
	st := r.nodes[id]
	st.workerStatus = status
	r.nodes[id] = st
	r.mu.Unlock()
	r.bumpGeneration()
}

// PutSubscription registers or updates a subscription. Test and
// bootstrap helper, not part of types.Registry.
func (r *Registry) PutSubscription(sub types.Subscription) {
	r.mu.Lock()
	for i, s := range r.subscriptions {
		if s.SetID == sub.SetID && s.Receiver == sub.Receiver {
			r.subscriptions[i] = sub
			r.mu.Unlock()
			r.bumpGeneration()
			return
		}
	}
	r.subscriptions = append(r.subscriptions, sub)
	r.mu.Unlock()
	r.bumpGeneration()
}

// PutSetTables registers the table ids belonging to a set. Test and
// bootstrap helper, not part of types.Registry.
func (r *Registry) PutSetTables(set types.SetID, tables []types.TableID, names map[types.TableID]string) {
	r.mu.Lock()
	r.setTables[set] = tables
	for id, name := range names {
		r.tableNames[id] = name
	}
	r.mu.Unlock()
}

// TableFQName implements types.Registry.
func (r *Registry) TableFQName(_ context.Context, id types.TableID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.tableNames[id]
	if !ok {
		return "", errors.Errorf("unknown table id %d", id)
	}
	return name, nil
}

// TablesForSet implements types.Registry.
func (r *Registry) TablesForSet(_ context.Context, set types.SetID) ([]types.TableID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tables, ok := r.setTables[set]
	if !ok {
		return nil, errors.Errorf("unknown set %d", set)
	}
	return tables, nil
}

// ApplyConfigEvent implements types.Registry, mutating local state per
// spec.md section 4.5. It never touches the database; the caller
// appends the matching stored procedure call to its own transaction.
func (r *Registry) ApplyConfigEvent(ev types.Event) error {
	switch ev.Type {
	case types.EventStoreNode:
		id, err := parseNodeID(ev.Args[0])
		if err != nil {
			return err
		}
		if id == r.self {
			return nil
		}
		r.mu.Lock()
		if _, ok := r.nodes[id]; !ok {
			r.nodes[id] = nodeState{active: false, workerStatus: types.WorkerRunning}
		}
		r.mu.Unlock()
		r.bumpGeneration()

	case types.EventEnableNode:
		id, err := parseNodeID(ev.Args[0])
		if err != nil {
			return err
		}
		if id == r.self {
			return nil
		}
		r.mu.Lock()
		st := r.nodes[id]
		st.active = true
		r.nodes[id] = st
		r.mu.Unlock()
		r.bumpGeneration()

	case types.EventStorePath:
		client, err := parseNodeID(ev.Args[1])
		if err != nil {
			return err
		}
		if client != r.self {
			return nil
		}
		server, err := parseNodeID(ev.Args[0])
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.providers[server] = types.ProviderConfig{NodeID: server, ConnInfo: ev.Args[2]}
		r.mu.Unlock()
		r.bumpGeneration()

	case types.EventStoreListen:
		receiver, err := parseNodeID(ev.Args[2])
		if err != nil {
			return err
		}
		if receiver != r.self {
			return nil
		}
		// Listen rows alone don't create a subscription; they name the
		// provider path a subsequent SUBSCRIBE_SET will use.
		r.bumpGeneration()

	case types.EventStoreSet:
		setID, err := parseSetID(ev.Args[0])
		if err != nil {
			return err
		}
		origin, err := parseNodeID(ev.Args[1])
		if err != nil {
			return err
		}
		if origin == r.self {
			r.bumpGeneration()
			return nil
		}
		r.mu.Lock()
		r.sets[setID] = types.Set{ID: setID, OriginNode: origin, Comment: ev.Args[2]}
		r.mu.Unlock()
		r.bumpGeneration()

	case types.EventSubscribeSet, types.EventEnableSubscription:
		setID, err := parseSetID(ev.Args[0])
		if err != nil {
			return err
		}
		receiver, err := parseNodeID(ev.Args[2])
		if err != nil {
			return err
		}
		if receiver != r.self {
			return nil
		}
		provider, err := parseNodeID(ev.Args[1])
		if err != nil {
			return err
		}
		r.mu.Lock()
		found := false
		for i, s := range r.subscriptions {
			if s.SetID == setID && s.Receiver == receiver {
				r.subscriptions[i].Provider = provider
				r.subscriptions[i].Forward = ev.Args[3] == "t"
				if ev.Type == types.EventEnableSubscription {
					r.subscriptions[i].Active = true
				}
				found = true
				break
			}
		}
		if !found {
			r.subscriptions = append(r.subscriptions, types.Subscription{
				SetID:    setID,
				Receiver: receiver,
				Provider: provider,
				Forward:  ev.Args[3] == "t",
				Active:   ev.Type == types.EventEnableSubscription,
			})
		}
		r.mu.Unlock()
		r.bumpGeneration()

	case types.EventSetAddTable:
		// Deferred: no registry effect per spec.md section 4.5.

	default:
		log.Warnf("unrecognized event type %q, ignoring", ev.Type)
	}

	return nil
}

func parseNodeID(s string) (types.NodeID, error) {
	var v int32
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, errors.Wrapf(err, "invalid node id %q", s)
	}
	return types.NodeID(v), nil
}

func parseSetID(s string) (types.SetID, error) {
	var v int32
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, errors.Wrapf(err, "invalid set id %q", s)
	}
	return types.SetID(v), nil
}
