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

// Package copyset implements the initial bulk load described in
// spec.md section 4.8: the one-time streaming copy of every table in
// a newly subscribed set, followed by reconstruction (or verbatim
// copy) of that set's setsync cursor. Run makes a single attempt; the
// exponential-backoff retry named in spec.md section 4.5 lives in the
// caller (internal/worker/configevents.go), matching remote_worker.c's
// structure where copy_set() is one call inside the caller's retry
// loop (see SPEC_FULL.md "Supplemented Features").
package copyset

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ioguix/slony1-engine/internal/metrics"
	"github.com/ioguix/slony1-engine/internal/sqlbuild"
	"github.com/ioguix/slony1-engine/internal/types"
)

// Table names one table being copied: its id and fully-qualified
// name. Its column list is discovered from the provider at copy time
// (discoverColumns), since spec.md section 4.8 has copy_set itself
// "enumerate the set's tables" against the provider connection.
type Table struct {
	ID      types.TableID
	Comment string
	FQName  string
}

// Request bundles everything Run needs to perform one copy_set
// attempt for a single set.
type Request struct {
	Set          types.SetID
	Origin       types.NodeID // the set's origin node
	Provider     types.NodeID // the node Run is copying from
	IsOrigin     bool         // true if Provider == Origin for this set
	Self         types.NodeID
	Tables       []Table
	ProviderConn *types.ProviderConn
	Schema       string
}

// rowsCopySource adapts a database/sql *sql.Rows into a
// pgx.CopyFromSource, so a provider-side SELECT can feed a local
// pgx.CopyFrom bulk load without buffering the whole table in memory.
type rowsCopySource struct {
	rows    *sql.Rows
	scratch []interface{}
	err     error
}

func newRowsCopySource(rows *sql.Rows, ncols int) *rowsCopySource {
	s := &rowsCopySource{rows: rows, scratch: make([]interface{}, ncols)}
	for i := range s.scratch {
		s.scratch[i] = new(interface{})
	}
	return s
}

func (s *rowsCopySource) Next() bool {
	if s.err != nil {
		return false
	}
	return s.rows.Next()
}

func (s *rowsCopySource) Values() ([]interface{}, error) {
	if err := s.rows.Scan(s.scratch...); err != nil {
		return nil, err
	}
	out := make([]interface{}, len(s.scratch))
	for i, v := range s.scratch {
		out[i] = *(v.(*interface{}))
	}
	return out, nil
}

func (s *rowsCopySource) Err() error { return s.rows.Err() }

// Run performs one copy_set attempt (spec.md section 4.8). local is
// the Worker's local pool, used both to install table definitions and
// to receive the copied rows.
func Run(ctx context.Context, local *types.LocalPool, req Request) (err error) {
	start := time.Now()
	originLabel := fmt.Sprintf("%d", req.Origin)
	defer func() {
		metrics.CopySetDurations.WithLabelValues(originLabel).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.CopySetErrors.WithLabelValues(originLabel).Inc()
		}
	}()

	ptx, err := req.ProviderConn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: true})
	if err != nil {
		return errors.Wrap(err, "copy_set: begin provider transaction")
	}
	defer ptx.Rollback()

	for _, tbl := range req.Tables {
		if err := installTable(ctx, local, req.Schema, tbl); err != nil {
			return errors.Wrapf(err, "copy_set: install table %d", tbl.ID)
		}
		if err := copyTable(ctx, local, ptx, tbl); err != nil {
			return errors.Wrapf(err, "copy_set: copy table %d", tbl.ID)
		}
	}

	cursor, err := buildSetsyncCursor(ctx, local, ptx, req)
	if err != nil {
		return errors.Wrap(err, "copy_set: build setsync cursor")
	}

	if _, err := local.Exec(ctx, sqlbuild.BuildSetsyncInsert(req.Schema),
		req.Set, cursor.Origin, cursor.Seqno, cursor.Snapshot.Min, cursor.Snapshot.Max,
		joinInts(cursor.Snapshot.InProgress), joinInts(cursor.ActionList)); err != nil {
		return errors.Wrap(err, "copy_set: insert setsync row")
	}

	log.WithField("set", req.Set).WithField("tables", len(req.Tables)).Info("copy_set completed")
	return nil
}

func installTable(ctx context.Context, local *types.LocalPool, schema string, tbl Table) error {
	_, err := local.Exec(ctx, sqlbuild.BuildSetAddTableCall(schema), tbl.ID, tbl.FQName, tbl.Comment)
	return err
}

// copyTable streams every row of one table from the provider
// transaction into the local database via pgx's bulk-load CopyFrom,
// mirroring spec.md section 4.8 step 2's "open a local COPY FROM
// stdin and a remote COPY TO stdout; stream bytes between them".
func copyTable(ctx context.Context, local *types.LocalPool, ptx *sql.Tx, tbl Table) error {
	columns, err := discoverColumns(ctx, ptx, tbl.FQName)
	if err != nil {
		return errors.Wrap(err, "discover columns")
	}

	selectList := ""
	for i, c := range columns {
		if i > 0 {
			selectList += ", "
		}
		selectList += c
	}
	rows, err := ptx.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", selectList, tbl.FQName))
	if err != nil {
		return errors.Wrap(err, "open provider cursor")
	}
	defer rows.Close()

	parts := pgx.Identifier{tbl.FQName}
	n, err := local.CopyFrom(ctx, parts, columns, newRowsCopySource(rows, len(columns)))
	if err != nil {
		return errors.Wrap(err, "local copy from")
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "read provider rows")
	}
	log.WithField("table", tbl.FQName).WithField("rows", n).Debug("copy_set: table copied")
	return nil
}

// discoverColumns enumerates a table's columns in ordinal position via
// information_schema, which both lib/pq's postgres driver and
// go-sql-driver/mysql expose identically (spec.md section 4.8's
// "enumerates the set's tables").
func discoverColumns(ctx context.Context, ptx *sql.Tx, fqname string) ([]string, error) {
	rows, err := ptx.QueryContext(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position",
		fqname)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// buildSetsyncCursor implements spec.md section 4.8's "determines the
// set's origin" branch: reconstruct from scratch if this node's
// provider for the set is the set's origin, otherwise copy the
// provider's existing setsync row verbatim.
func buildSetsyncCursor(ctx context.Context, local *types.LocalPool, ptx *sql.Tx, req Request) (types.SetsyncCursor, error) {
	if req.IsOrigin {
		return reconstructFromOrigin(ctx, local, req)
	}
	return copyFromSlave(ctx, ptx, req)
}

// reconstructFromOrigin finds the max SYNC seqno already recorded
// locally for this origin; if none exists the cursor is zero with
// every known local action-sequence for the set excluded, else the
// cursor copies that SYNC's snapshot with an empty exclusion list
// (every action strictly after that snapshot is outstanding).
func reconstructFromOrigin(ctx context.Context, local *types.LocalPool, req Request) (types.SetsyncCursor, error) {
	cursor := types.SetsyncCursor{SetID: req.Set, Origin: req.Origin}

	row := local.QueryRow(ctx, sqlbuild.BuildMaxSyncSeqnoQuery(req.Schema), req.Origin)
	var xip string
	if err := row.Scan(&cursor.Seqno, &cursor.Snapshot.Min, &cursor.Snapshot.Max, &xip); err != nil {
		if err == pgx.ErrNoRows {
			return cursor, nil
		}
		return cursor, errors.Wrap(err, "query max sync seqno")
	}
	cursor.Snapshot.InProgress = parseInt64List(xip)
	return cursor, nil
}

// copyFromSlave reads the provider's own setsync row for this set and
// returns it verbatim, per spec.md section 4.8 "If the provider is
// another slave, copy that slave's existing setsync row verbatim."
func copyFromSlave(ctx context.Context, ptx *sql.Tx, req Request) (types.SetsyncCursor, error) {
	cursor := types.SetsyncCursor{SetID: req.Set, Origin: req.Origin}
	row := ptx.QueryRowContext(ctx, sqlbuild.BuildProviderSetsyncQuery(req.Schema), req.Set)

	var xip, actions string
	if err := row.Scan(&cursor.Seqno, &cursor.Snapshot.Min, &cursor.Snapshot.Max, &xip, &actions); err != nil {
		return cursor, errors.Wrap(err, "query provider setsync row")
	}
	cursor.Snapshot.InProgress = parseInt64List(xip)
	cursor.ActionList = parseInt64List(actions)
	return cursor, nil
}

func parseInt64List(s string) []int64 {
	if s == "" {
		return nil
	}
	var out []int64
	var cur int64
	neg, started := false, false
	for _, r := range s {
		switch {
		case r == ',':
			if started {
				if neg {
					cur = -cur
				}
				out = append(out, cur)
			}
			cur, neg, started = 0, false, false
		case r == '-':
			neg = true
		case r >= '0' && r <= '9':
			cur = cur*10 + int64(r-'0')
			started = true
		}
	}
	if started {
		if neg {
			cur = -cur
		}
		out = append(out, cur)
	}
	return out
}

func joinInts(xs []int64) string {
	s := ""
	for i, x := range xs {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", x)
	}
	return s
}
