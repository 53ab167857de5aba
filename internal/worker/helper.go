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
	"database/sql"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ioguix/slony1-engine/internal/ident"
	"github.com/ioguix/slony1-engine/internal/sqlbuild"
	"github.com/ioguix/slony1-engine/internal/types"
)

// helperStatus is the per-Helper lifecycle state from spec.md section
// 4.7: IDLE -> BUSY -> DONE -> IDLE, or IDLE -> EXIT -> terminated.
type helperStatus int

const (
	helperIdle helperStatus = iota
	helperBusy
	helperDone
	helperExit
)

// defaultFetchSize is the per-Helper fetch batch size. newHelper
// copies it into the unexported fetchSize field; no flag or Config
// field changes it.
const defaultFetchSize = 100

// helper runs the per-Provider fetch cycle described in spec.md
// section 4.7. Its lock (helper_lock in spec.md section 5) guards
// status and qualification, and is held across the entire reconcile
// transition for its provider (spec.md section 4.3).
type helper struct {
	mu        sync.Mutex
	cond      *sync.Cond
	status    helperStatus
	qualWhere string // qualification predicate set before each dispatch

	provider   types.NodeID
	schema     string
	group      *workgroup
	conn       *types.ProviderConn
	fqnames    *ident.FQNameCache
	fetchSize  int

	done chan struct{}
}

func newHelper(
	provider types.NodeID, schema string, group *workgroup, conn *types.ProviderConn, fqnames *ident.FQNameCache,
) *helper {
	h := &helper{
		provider:  provider,
		schema:    schema,
		group:     group,
		conn:      conn,
		fqnames:   fqnames,
		fetchSize: defaultFetchSize,
		done:      make(chan struct{}),
	}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// setStatus transitions the helper's status and wakes anyone waiting
// on its condition (the Worker awaiting DONE, or the helper itself
// awaiting BUSY/EXIT/IDLE).
func (h *helper) setStatus(s helperStatus) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
	h.cond.Broadcast()
}

func (h *helper) getStatus() helperStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// dispatch arms the helper with a qualification predicate and moves it
// to BUSY, per spec.md section 4.4 dispatch step 2.
func (h *helper) dispatch(where string) {
	h.mu.Lock()
	h.qualWhere = where
	h.status = helperBusy
	h.mu.Unlock()
	h.cond.Broadcast()
}

// awaitBusyOrExit blocks while IDLE, per spec.md section 4.7 step 1-2.
// It returns the status that ended the wait: BUSY or EXIT.
func (h *helper) awaitBusyOrExit() helperStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.status == helperIdle {
		h.cond.Wait()
	}
	return h.status
}

// awaitIdle blocks until the Worker resets status back to IDLE after
// observing DONE (spec.md section 4.7 step 7).
func (h *helper) awaitIdle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.status != helperIdle && h.status != helperExit {
		h.cond.Wait()
	}
}

// run is the Helper's top-level loop: wait for BUSY or EXIT, run one
// SYNC fetch cycle, report DONE, wait for IDLE, repeat. Terminates on
// EXIT, which is only respected while IDLE (spec.md section 4.7).
func (h *helper) run(ctx context.Context) {
	for {
		switch h.awaitBusyOrExit() {
		case helperExit:
			return
		case helperBusy:
			h.runOneSync(ctx)
			h.setStatus(helperDone)
			h.awaitIdle()
			if h.getStatus() == helperExit {
				return
			}
		}
	}
}

// runOneSync implements spec.md section 4.7 steps 3-6: open a
// serializable-read transaction, declare a cursor, fetch in batches
// into Lines, and report DONE/ERROR.
func (h *helper) runOneSync(ctx context.Context) {
	h.mu.Lock()
	where := h.qualWhere
	h.mu.Unlock()

	failed := false
	if err := h.fetchLoop(ctx, where); err != nil {
		log.WithError(err).WithField("provider", h.provider).Warn("helper fetch failed")
		failed = true
	}

	lines, _ := h.group.acquireLines(1)
	line := &Line{}
	if len(lines) > 0 {
		line = lines[0]
	}
	// Once the workgroup has left BUSY (ABORT) the pool hands out no
	// Line, so a fresh one carries the report; either way the Worker's
	// apply loop receives exactly one DONE/ERROR from this helper.
	line.Provider = h.provider
	if failed {
		line.Kind = LineError
	} else {
		line.Kind = LineDone
	}
	// DONE is set before the report is published; run sets it once more
	// after runOneSync returns.
	h.setStatus(helperDone)
	h.group.publish([]*Line{line})
}

func (h *helper) fetchLoop(ctx context.Context, where string) error {
	tx, err := h.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin provider transaction: %w", err)
	}
	defer tx.Rollback()

	const cursorName = "slon_helper_cursor"
	query := sqlbuild.BuildCursorQuery(h.schema, where)
	if _, err := tx.ExecContext(ctx, sqlbuild.DeclareCursorSQL(cursorName, query)); err != nil {
		return fmt.Errorf("declare cursor: %w", err)
	}

	for {
		if h.group.getStatus() != statusBusy {
			return fmt.Errorf("workgroup aborted while fetching")
		}

		lines, ok := h.group.acquireLines(h.fetchSize)
		if !ok {
			return fmt.Errorf("workgroup aborted while awaiting line buffers")
		}
		if len(lines) == 0 {
			continue
		}

		rows, err := tx.QueryContext(ctx, sqlbuild.FetchSQL(cursorName, len(lines)))
		if err != nil {
			h.group.returnLines(lines)
			return fmt.Errorf("fetch cursor: %w", err)
		}

		n, err := h.fillLines(ctx, rows, lines)
		rows.Close()
		if err != nil {
			h.group.returnLines(lines)
			return err
		}

		filled := lines[:n]
		unused := lines[n:]
		h.group.returnLines(unused)
		h.group.publish(filled)

		if n < len(lines) {
			break
		}
	}

	if _, err := tx.ExecContext(ctx, sqlbuild.CloseCursorSQL(cursorName)); err != nil {
		return fmt.Errorf("close cursor: %w", err)
	}
	return nil
}

// fillLines reads rows into the given Lines in arrival order,
// reconstructing one SQL statement per row (spec.md section 4.7 "SQL
// reconstruction"). It returns the number of Lines filled.
func (h *helper) fillLines(ctx context.Context, rows *sql.Rows, lines []*Line) (int, error) {
	n := 0
	for rows.Next() {
		var row types.LogRow
		var origin int32
		var tableID int32
		var kind string
		if err := rows.Scan(&origin, &row.XID, &tableID, &row.ActionSeq, &kind, &row.CmdData); err != nil {
			return n, fmt.Errorf("scan log row: %w", err)
		}
		row.Origin = types.NodeID(origin)
		row.TableID = types.TableID(tableID)
		row.Kind = types.ActionKind(kind[0])

		fq, err := h.fqnames.Lookup(ctx, row.TableID)
		if err != nil {
			return n, fmt.Errorf("resolve table %d: %w", row.TableID, err)
		}
		sqlText, err := sqlbuild.ReconstructAction(fq.Raw(), row)
		if err != nil {
			return n, err
		}

		lines[n].Kind = LineAction
		lines[n].SQL = sqlText
		lines[n].Provider = h.provider
		n++
		if n == len(lines) {
			break
		}
	}
	return n, rows.Err()
}
