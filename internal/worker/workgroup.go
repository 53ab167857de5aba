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

// Package worker implements the per-remote-node Worker state machine
// described in spec.md sections 4.2-4.6: the message-queue consumer,
// provider reconciliation, SYNC orchestration, and configuration-event
// handling. Helpers (spec.md section 4.7) live in this package too,
// since they share the workgroup's Line pool and locks directly
// (spec.md section 5's lock-order invariant is only checkable if both
// sides of the rendezvous are visible to the same package), mirroring
// how remote_worker.c keeps worker and helper logic in one
// translation unit.
package worker

import (
	"sync"

	"github.com/ioguix/slony1-engine/internal/types"
)

// LineKind distinguishes the three things a Line can carry.
type LineKind int

// Recognized LineKinds.
const (
	LineAction LineKind = iota
	LineDone
	LineError
)

// Line is a reusable carrier for one SQL statement or a DONE/ERROR
// control marker, flowing from a Helper to the Worker. spec.md section
// 9 calls out the source's flexible-array-member allocation as a C
// micro-optimization; here a Line is an ordinary owned struct and the
// runtime handles allocation. A Line is on at most one of {pool,
// repldata, held by its Helper} at any instant (Testable Property 4).
type Line struct {
	Kind     LineKind
	SQL      string
	Provider types.NodeID
}

// workgroupStatus is the SYNC-scoped status shared by the Worker and
// every Helper in its workgroup.
type workgroupStatus int

const (
	statusIdle workgroupStatus = iota
	statusBusy
	statusAbort
)

// workgroup holds the shared, reusable free list of Lines (spec.md
// "linepool"). The pool is guarded by the same mutex as repldata
// (workdata_lock in spec.md section 5): allocate/return operations on
// the pool and appends to repldata are part of the same rendezvous, so
// a single lock avoids a lock-order hazard between them.
type workgroup struct {
	mu   sync.Mutex
	cond *sync.Cond // broadcast on pool returns and status transitions

	status       workgroupStatus
	pool         []*Line
	repldata     []*Line
	activeHelper int // number of helpers still BUSY for the in-flight SYNC
}

func newWorkgroup() *workgroup {
	g := &workgroup{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// growPool contributes n fresh Lines to the shared pool, called when a
// ProviderContext is created (spec.md section 4.3 step 2).
func (g *workgroup) growPool(n int) {
	g.mu.Lock()
	for i := 0; i < n; i++ {
		g.pool = append(g.pool, &Line{})
	}
	g.mu.Unlock()
	g.cond.Broadcast()
}

// acquireLines blocks until at least one Line is available or the
// workgroup status is no longer BUSY, then removes up to want Lines
// from the pool. It returns fewer than want only when the pool can't
// supply more right now; callers loop. Returns ok=false if the
// workgroup left BUSY while waiting (spec.md section 4.7 step 4: "If
// the workgroup status transitions away from BUSY while waiting,
// abort").
func (g *workgroup) acquireLines(want int) (lines []*Line, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for len(g.pool) == 0 && g.status == statusBusy {
		g.cond.Wait()
	}
	if g.status != statusBusy {
		return nil, false
	}

	n := want
	if n > len(g.pool) {
		n = len(g.pool)
	}
	lines = append(lines, g.pool[:n]...)
	g.pool = g.pool[n:]
	return lines, true
}

// returnLines gives unused Lines back to the pool and wakes any
// Helper blocked in acquireLines (Testable Property 9).
func (g *workgroup) returnLines(lines []*Line) {
	if len(lines) == 0 {
		return
	}
	g.mu.Lock()
	g.pool = append(g.pool, lines...)
	g.mu.Unlock()
	g.cond.Broadcast()
}

// publish appends filled Lines to repldata and wakes the Worker's
// apply loop.
func (g *workgroup) publish(lines []*Line) {
	if len(lines) == 0 {
		return
	}
	g.mu.Lock()
	g.repldata = append(g.repldata, lines...)
	g.mu.Unlock()
	g.cond.Broadcast()
}

// drainRepldata blocks until repldata is non-empty, then detaches and
// returns the entire list under the lock (spec.md section 4.4 apply
// loop: "Detach the entire repldata list under the workdata lock").
func (g *workgroup) drainRepldata() []*Line {
	g.mu.Lock()
	defer g.mu.Unlock()
	for len(g.repldata) == 0 {
		g.cond.Wait()
	}
	lines := g.repldata
	g.repldata = nil
	return lines
}

// setStatus transitions the workgroup status and wakes everyone
// waiting on it (Helpers awaiting BUSY, Helpers awaiting pool space
// who need to observe ABORT).
func (g *workgroup) setStatus(s workgroupStatus) {
	g.mu.Lock()
	g.status = s
	g.mu.Unlock()
	g.cond.Broadcast()
}

func (g *workgroup) getStatus() workgroupStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

func (g *workgroup) setActiveHelpers(n int) {
	g.mu.Lock()
	g.activeHelper = n
	g.mu.Unlock()
}

func (g *workgroup) decrementActiveHelpers() int {
	g.mu.Lock()
	g.activeHelper--
	n := g.activeHelper
	g.mu.Unlock()
	return n
}
