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

// Package queue implements the per-node message queue described in
// spec.md section 4.1: a FIFO of EVENT/CONFIRM/WAKEUP messages with
// one Worker consumer and many listener producers. The queue owns its
// own lock (message_lock in spec.md section 5) and is the one place
// that decides whether an inbound Event or Confirm is accepted, stale,
// or a duplicate.
package queue

import (
	"sync"

	"github.com/ioguix/slony1-engine/internal/msort"
	"github.com/ioguix/slony1-engine/internal/types"
)

// Kind distinguishes the three message shapes the queue carries.
type Kind int

// Recognized message kinds.
const (
	KindEvent Kind = iota
	KindConfirm
	KindWakeup
)

// Message is one FIFO entry. Only the field matching Kind is
// meaningful.
type Message struct {
	Kind    Kind
	Event   types.Event
	Confirm types.Confirm
}

// Queue is a per-node FIFO guarded by message_lock (spec.md section
// 5). lastEvent tracks the origin's last-accepted seqno so that
// enqueueEvent can reject duplicates/stale events under the same lock
// that appends them, closing the race spec.md section 4.1 calls out.
type Queue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	messages  []Message
	lastEvent int64
}

// New returns an empty Queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// EnqueueEvent implements spec.md section 4.1's enqueueEvent. It
// fails silently (returns false) if seqno is not strictly greater
// than the last accepted seqno for this origin's queue. Acceptance
// and the last-event bump happen under the same lock so that two
// concurrent listener calls can't both observe the old high-water
// mark and both enqueue.
func (q *Queue) EnqueueEvent(ev types.Event) (accepted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ev.Seqno <= q.lastEvent {
		return false
	}
	q.lastEvent = ev.Seqno
	q.messages = append(q.messages, Message{Kind: KindEvent, Event: ev})
	q.cond.Signal()
	return true
}

// EnqueueConfirm implements spec.md section 4.1's enqueueConfirm: it
// scans the queue for an existing CONFIRM with a matching (origin,
// receiver) pair and replaces it in place if the new seqno is higher,
// otherwise appends. At most one pending CONFIRM per pair exists at
// any time, always carrying the maximum seqno seen.
func (q *Queue) EnqueueConfirm(c types.Confirm) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, m := range q.messages {
		if m.Kind != KindConfirm {
			continue
		}
		if m.Confirm.Key() != c.Key() {
			continue
		}
		if m.Confirm.Seqno < c.Seqno {
			q.messages[i].Confirm = c
		}
		return
	}
	q.messages = append(q.messages, Message{Kind: KindConfirm, Confirm: c})
	q.cond.Signal()
}

// EnqueueWakeup implements spec.md section 4.1's enqueueWakeup. The
// caller must not target its own node; this package does not enforce
// that since it has no notion of "the caller's node".
func (q *Queue) EnqueueWakeup() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, Message{Kind: KindWakeup})
	q.cond.Signal()
}

// Dequeue blocks until the queue is non-empty, then returns the head
// message.
func (q *Queue) Dequeue() Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.messages) == 0 {
		q.cond.Wait()
	}
	m := q.messages[0]
	q.messages = q.messages[1:]
	return m
}

// Len reports the current queue depth, for metrics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// compactConfirms is a defensive pass applying the same "keep highest
// seqno per key" rule msort.UniqueConfirmsByKey implements, usable by
// tests that construct a Queue's backlog directly rather than via
// EnqueueConfirm. Production code never needs it because
// EnqueueConfirm already maintains the invariant incrementally.
func compactConfirms(cs []types.Confirm) []types.Confirm {
	return msort.UniqueConfirmsByKey(cs)
}
