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

package sqlbuild

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ioguix/slony1-engine/internal/types"
)

// NewSyncQualification builds the snapshot predicate named in spec.md
// section 4.4:
//
//	(log_xid < minxid) OR (log_xid <= maxxid AND log_xid NOT IN (xip))   -- xip non-empty
//	(log_xid <= maxxid)                                                  -- xip empty
//
// It is built once per SYNC and reused for every provider/set pair,
// matching remote_worker.c's structure (see SPEC_FULL.md "Supplemented
// Features").
func NewSyncQualification(snap types.Snapshot) string {
	if len(snap.InProgress) == 0 {
		return fmt.Sprintf("(log_xid <= %d)", snap.Max)
	}
	return fmt.Sprintf("(log_xid < %d OR (log_xid <= %d AND log_xid NOT IN (%s)))",
		snap.Min, snap.Max, joinInt64s(snap.InProgress))
}

// SetsyncQualification builds the per-set exclusion predicate from a
// stored setsync cursor: the inverse of the cursor's own snapshot
// (rows that were NOT yet visible as of the last applied SYNC) plus an
// exclusion on the cursor's residual action-sequence list, which is
// what makes re-applying a partially-applied SYNC idempotent (spec.md
// Testable Property 6).
func SetsyncQualification(cursor types.SetsyncCursor) string {
	var inverse string
	if len(cursor.Snapshot.InProgress) == 0 {
		inverse = fmt.Sprintf("(log_xid > %d)", cursor.Snapshot.Max)
	} else {
		inverse = fmt.Sprintf("(log_xid >= %d AND NOT (log_xid <= %d AND log_xid NOT IN (%s)))",
			cursor.Snapshot.Min, cursor.Snapshot.Max, joinInt64s(cursor.Snapshot.InProgress))
	}

	if len(cursor.ActionList) == 0 {
		return inverse
	}
	return fmt.Sprintf("(%s AND log_actionseq NOT IN (%s))", inverse, joinInt64s(cursor.ActionList))
}

// SetPredicate is one disjunct of the composite WHERE clause built by
// BuildWhere: the tables belonging to one set, ANDed with the new-SYNC
// qualification and that set's setsync qualification.
type SetPredicate struct {
	TableIDs       []types.TableID
	SetsyncClause  string
}

// BuildWhere assembles the composite WHERE clause from spec.md section
// 4.4:
//
//	(log_tableid IN (tab_ids_of_set) AND <new-SYNC qualification> AND <setsync qualification>)
//	OR (... next set ...)
func BuildWhere(newSync string, sets []SetPredicate) string {
	if len(sets) == 0 {
		return "false"
	}
	clauses := make([]string, len(sets))
	for i, s := range sets {
		clauses[i] = fmt.Sprintf("(log_tableid IN (%s) AND %s AND %s)",
			joinTableIDs(s.TableIDs), newSync, s.SetsyncClause)
	}
	return strings.Join(clauses, "\nOR ")
}

func joinInt64s(xs []int64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.FormatInt(x, 10)
	}
	return strings.Join(parts, ", ")
}

func joinTableIDs(xs []types.TableID) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.FormatInt(int64(x), 10)
	}
	return strings.Join(parts, ", ")
}
