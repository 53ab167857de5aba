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

package queue

import (
	"testing"
	"time"

	"github.com/ioguix/slony1-engine/internal/types"
)

func TestEnqueueEventOrderingAndDedup(t *testing.T) {
	q := New()

	if !q.EnqueueEvent(types.Event{Seqno: 1}) {
		t.Fatalf("expected seqno 1 to be accepted")
	}
	if q.EnqueueEvent(types.Event{Seqno: 1}) {
		t.Fatalf("expected duplicate seqno 1 to be rejected")
	}
	if q.EnqueueEvent(types.Event{Seqno: 1}) {
		t.Fatalf("expected stale seqno 1 to still be rejected after first rejection")
	}
	if !q.EnqueueEvent(types.Event{Seqno: 2}) {
		t.Fatalf("expected seqno 2 to be accepted")
	}

	first := q.Dequeue()
	if first.Kind != KindEvent || first.Event.Seqno != 1 {
		t.Fatalf("expected first dequeue to be event seqno 1, got %+v", first)
	}
	second := q.Dequeue()
	if second.Kind != KindEvent || second.Event.Seqno != 2 {
		t.Fatalf("expected second dequeue to be event seqno 2, got %+v", second)
	}
}

func TestEnqueueConfirmCoalesces(t *testing.T) {
	q := New()

	q.EnqueueConfirm(types.Confirm{Origin: 1, Receiver: 2, Seqno: 5})
	q.EnqueueConfirm(types.Confirm{Origin: 1, Receiver: 2, Seqno: 3})
	q.EnqueueConfirm(types.Confirm{Origin: 1, Receiver: 2, Seqno: 9})
	q.EnqueueConfirm(types.Confirm{Origin: 1, Receiver: 3, Seqno: 1})

	if got := q.Len(); got != 2 {
		t.Fatalf("expected exactly one coalesced confirm per (origin, receiver) pair plus the distinct receiver, got %d messages", got)
	}

	msg := q.Dequeue()
	if msg.Kind != KindConfirm || msg.Confirm.Receiver != 2 || msg.Confirm.Seqno != 9 {
		t.Fatalf("expected coalesced confirm to carry the max seqno 9, got %+v", msg)
	}
}

func TestEnqueueWakeup(t *testing.T) {
	q := New()
	q.EnqueueWakeup()
	msg := q.Dequeue()
	if msg.Kind != KindWakeup {
		t.Fatalf("expected a wakeup message, got %+v", msg)
	}
}

func TestDequeueBlocksUntilNonEmpty(t *testing.T) {
	q := New()
	done := make(chan Message, 1)
	go func() {
		done <- q.Dequeue()
	}()

	select {
	case <-done:
		t.Fatalf("dequeue returned before any message was enqueued")
	case <-time.After(50 * time.Millisecond):
	}

	q.EnqueueWakeup()

	select {
	case msg := <-done:
		if msg.Kind != KindWakeup {
			t.Fatalf("expected wakeup, got %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("dequeue did not unblock after enqueue")
	}
}

func TestCompactConfirmsKeepsHighestSeqnoPerKey(t *testing.T) {
	cs := []types.Confirm{
		{Origin: 1, Receiver: 2, Seqno: 1},
		{Origin: 1, Receiver: 2, Seqno: 7},
		{Origin: 1, Receiver: 3, Seqno: 4},
	}
	out := compactConfirms(cs)
	if len(out) != 2 {
		t.Fatalf("expected 2 unique keys, got %d", len(out))
	}
	for _, c := range out {
		if c.Receiver == 2 && c.Seqno != 7 {
			t.Fatalf("expected receiver 2's confirm to keep seqno 7, got %d", c.Seqno)
		}
	}
}
