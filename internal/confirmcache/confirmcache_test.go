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

package confirmcache

import (
	"sync"
	"testing"

	"github.com/ioguix/slony1-engine/internal/types"
)

func TestAdmitAdvancesAndDropsStale(t *testing.T) {
	c := New()

	if !c.Admit(types.Confirm{Origin: 1, Receiver: 2, Seqno: 5}) {
		t.Fatalf("expected the first confirm for a key to be admitted")
	}
	if c.Admit(types.Confirm{Origin: 1, Receiver: 2, Seqno: 5}) {
		t.Fatalf("expected a repeated confirm at the same seqno to be dropped")
	}
	if c.Admit(types.Confirm{Origin: 1, Receiver: 2, Seqno: 3}) {
		t.Fatalf("expected a stale confirm to be dropped")
	}
	if !c.Admit(types.Confirm{Origin: 1, Receiver: 2, Seqno: 9}) {
		t.Fatalf("expected an advancing confirm to be admitted")
	}

	got, ok := c.Get(types.ConfirmKey{Origin: 1, Receiver: 2})
	if !ok || got.Seqno != 9 {
		t.Fatalf("expected cached seqno 9, got %+v (ok=%v)", got, ok)
	}
}

func TestAdmitIsConcurrencySafe(t *testing.T) {
	c := New()
	key := types.ConfirmKey{Origin: 1, Receiver: 2}

	var wg sync.WaitGroup
	for i := int64(1); i <= 100; i++ {
		wg.Add(1)
		go func(seqno int64) {
			defer wg.Done()
			c.Admit(types.Confirm{Origin: key.Origin, Receiver: key.Receiver, Seqno: seqno})
		}(i)
	}
	wg.Wait()

	got, ok := c.Get(key)
	if !ok || got.Seqno != 100 {
		t.Fatalf("expected the highest seqno 100 to win regardless of arrival order, got %+v", got)
	}
}

func TestGetMissingKey(t *testing.T) {
	c := New()
	if _, ok := c.Get(types.ConfirmKey{Origin: 9, Receiver: 9}); ok {
		t.Fatalf("expected a miss on an unknown key")
	}
}
