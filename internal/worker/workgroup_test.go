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
	"time"
)

// TestAcquireLinesBlocksUntilReturned exercises Testable Property 9:
// if the pool is empty and the workgroup is BUSY, a blocked acquirer
// unblocks as soon as a Line is returned.
func TestAcquireLinesBlocksUntilReturned(t *testing.T) {
	g := newWorkgroup()
	g.setStatus(statusBusy)
	g.growPool(1)

	first, ok := g.acquireLines(1)
	if !ok || len(first) != 1 {
		t.Fatalf("expected to acquire the single seeded line, got %+v (ok=%v)", first, ok)
	}

	done := make(chan []*Line, 1)
	go func() {
		lines, ok := g.acquireLines(1)
		if !ok {
			done <- nil
			return
		}
		done <- lines
	}()

	select {
	case <-done:
		t.Fatalf("expected the second acquirer to block on an empty pool")
	case <-time.After(50 * time.Millisecond):
	}

	g.returnLines(first)

	select {
	case lines := <-done:
		if len(lines) != 1 {
			t.Fatalf("expected exactly one line to be handed to the unblocked acquirer, got %+v", lines)
		}
	case <-time.After(time.Second):
		t.Fatalf("acquireLines did not unblock after returnLines")
	}
}

// TestAcquireLinesAbortsOnStatusChange exercises spec.md section 4.7
// step 4: a blocked acquirer must observe the workgroup leaving BUSY
// and abort rather than wait forever.
func TestAcquireLinesAbortsOnStatusChange(t *testing.T) {
	g := newWorkgroup()
	g.setStatus(statusBusy)

	done := make(chan bool, 1)
	go func() {
		_, ok := g.acquireLines(1)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	g.setStatus(statusAbort)

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected acquireLines to report ok=false once the workgroup left BUSY")
		}
	case <-time.After(time.Second):
		t.Fatalf("acquireLines did not unblock after an ABORT transition")
	}
}

// TestDrainRepldataDetachesWholeList exercises spec.md section 4.4's
// "detach the entire repldata list under the workdata lock".
func TestDrainRepldataDetachesWholeList(t *testing.T) {
	g := newWorkgroup()
	g.publish([]*Line{{Kind: LineAction, SQL: "a"}, {Kind: LineAction, SQL: "b"}})

	lines := g.drainRepldata()
	if len(lines) != 2 {
		t.Fatalf("expected both published lines to be detached together, got %d", len(lines))
	}

	g.mu.Lock()
	remaining := len(g.repldata)
	g.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected repldata to be empty after drain, got %d remaining", remaining)
	}
}

// TestLineNeverInTwoPlaces exercises Testable Property 4: a Line
// acquired from the pool is never simultaneously visible in repldata.
func TestLineNeverInTwoPlaces(t *testing.T) {
	g := newWorkgroup()
	g.setStatus(statusBusy)
	g.growPool(3)

	lines, ok := g.acquireLines(3)
	if !ok || len(lines) != 3 {
		t.Fatalf("expected to acquire all 3 seeded lines, got %+v (ok=%v)", lines, ok)
	}

	g.mu.Lock()
	poolLen := len(g.pool)
	repldataLen := len(g.repldata)
	g.mu.Unlock()
	if poolLen != 0 || repldataLen != 0 {
		t.Fatalf("expected lines held by the caller to be absent from both pool and repldata, pool=%d repldata=%d", poolLen, repldataLen)
	}

	g.publish(lines[:2])
	g.returnLines(lines[2:])

	g.mu.Lock()
	poolLen = len(g.pool)
	repldataLen = len(g.repldata)
	g.mu.Unlock()
	if poolLen != 1 || repldataLen != 2 {
		t.Fatalf("expected 1 line back in the pool and 2 in repldata, got pool=%d repldata=%d", poolLen, repldataLen)
	}
}

func TestActiveHelperCounting(t *testing.T) {
	g := newWorkgroup()
	g.setActiveHelpers(3)
	if left := g.decrementActiveHelpers(); left != 2 {
		t.Fatalf("expected 2 remaining, got %d", left)
	}
	g.decrementActiveHelpers()
	if left := g.decrementActiveHelpers(); left != 0 {
		t.Fatalf("expected 0 remaining, got %d", left)
	}
}
