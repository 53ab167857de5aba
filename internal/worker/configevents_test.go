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
	"testing"

	"github.com/ioguix/slony1-engine/internal/types"
)

// TestResolveSetOriginReturnsStoredOriginNode exercises spec.md section
// 8's E6 scenario: a subscriber enabling a subscription through a
// forwarding provider must learn the set's true origin from STORE_SET,
// not from ENABLE_SUBSCRIPTION's own args (which never carry it).
func TestResolveSetOriginReturnsStoredOriginNode(t *testing.T) {
	reg := newFakeRegistry(1)
	reg.sets[100] = types.Set{ID: 100, OriginNode: 5, Comment: "accounts"}

	origin, err := resolveSetOrigin(reg, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if origin != 5 {
		t.Fatalf("expected origin 5, got %d", origin)
	}
}

// TestResolveSetOriginErrorsWhenSetUnknown covers the case STORE_SET
// hasn't been applied locally yet: resolveSetOrigin must fail loudly
// rather than silently falling back to treating the provider as the
// origin (the bug this replaces).
func TestResolveSetOriginErrorsWhenSetUnknown(t *testing.T) {
	reg := newFakeRegistry(1)
	if _, err := resolveSetOrigin(reg, 999); err == nil {
		t.Fatalf("expected an error for an unknown set")
	}
}

// TestEnableSubscriptionIsOriginDistinguishesForwardingProvider checks
// the input to enableSubscription's IsOrigin expression (provider ==
// origin) without running enableSubscription itself: when the set's
// recorded origin differs from the provider this node is copying
// from, resolveSetOrigin returns that origin, so the expression is
// false and copy_set copies the provider's setsync row verbatim
// instead of reconstructing from scratch (spec.md section 4.8).
func TestEnableSubscriptionIsOriginDistinguishesForwardingProvider(t *testing.T) {
	reg := newFakeRegistry(1)
	reg.sets[100] = types.Set{ID: 100, OriginNode: 9, Comment: "accounts"}

	origin, err := resolveSetOrigin(reg, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	const provider = types.NodeID(5)
	if isOrigin := provider == origin; isOrigin {
		t.Fatalf("expected provider %d to be distinct from origin %d", provider, origin)
	}
}
