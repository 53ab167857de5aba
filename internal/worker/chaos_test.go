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
	"testing"

	"github.com/ioguix/slony1-engine/internal/types"
)

func TestWithChaosZeroProbabilityReturnsDelegate(t *testing.T) {
	delegate := newFakeRegistry(1)
	got := WithChaos(delegate, 0)
	if got != delegate {
		t.Fatalf("expected a zero probability to return the delegate unwrapped")
	}
}

func TestWithChaosAlwaysFailsAtProbabilityOne(t *testing.T) {
	delegate := newFakeRegistry(1)
	chaotic := WithChaos(delegate, 1)

	if err := chaotic.ApplyConfigEvent(types.Event{Type: types.EventStoreNode, Args: [8]string{"2", ""}}); err == nil {
		t.Fatalf("expected ApplyConfigEvent to fail at probability 1")
	}
	if _, err := chaotic.TableFQName(context.Background(), 1); err == nil {
		t.Fatalf("expected TableFQName to fail at probability 1")
	}
	if _, err := chaotic.TablesForSet(context.Background(), 1); err == nil {
		t.Fatalf("expected TablesForSet to fail at probability 1")
	}
}

func TestWithChaosPassthroughMethods(t *testing.T) {
	delegate := newFakeRegistry(1)
	delegate.subs[1] = []types.Subscription{{SetID: 5, Receiver: 1}}
	delegate.providers[9] = types.ProviderConfig{NodeID: 9}
	delegate.cluster = "mycluster"
	delegate.schema = "_slon"
	delegate.nodes[1] = true

	chaotic := WithChaos(delegate, 0.5)

	if chaotic.SelfID() != delegate.self {
		t.Fatalf("expected SelfID to pass through")
	}
	if chaotic.ClusterName() != "mycluster" || chaotic.SchemaQualifier() != "_slon" {
		t.Fatalf("expected cluster/schema to pass through")
	}
	if active, ok := chaotic.FindNode(1); !ok || !active {
		t.Fatalf("expected FindNode to pass through")
	}
	if subs := chaotic.Subscriptions(1); len(subs) != 1 {
		t.Fatalf("expected Subscriptions to pass through, got %+v", subs)
	}
	if _, ok := chaotic.Provider(9); !ok {
		t.Fatalf("expected Provider to pass through")
	}
	if chaotic.Generation() != delegate.Generation() {
		t.Fatalf("expected Generation to pass through")
	}
}
