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
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ioguix/slony1-engine/internal/metrics"
	"github.com/ioguix/slony1-engine/internal/sqlbuild"
	"github.com/ioguix/slony1-engine/internal/stopper"
	"github.com/ioguix/slony1-engine/internal/types"
)

// syncRetryDelay is the fixed backoff applied after a failed apply
// attempt (spec.md section 4.4 "On any error during apply").
const syncRetryDelay = 10 * time.Second

// ErrProviderNotCaughtUp is returned by the (stubbed) provider-up-to
// -date check named in spec.md section 9: "Treat this as an open
// requirement... Implementations should surface this as a retryable
// error rather than panic."
var ErrProviderNotCaughtUp = errors.New("provider has not yet confirmed this event's seqno")

// runSync implements spec.md section 4.4. It returns done=true once
// every statement has been applied inside tx and the setsync cursors
// advanced (the caller issues the Commit);
// done=false means the caller should roll back and retry after
// retryAfter.
func (w *Worker) runSync(
	ctx context.Context, stop *stopper.Context, tx pgx.Tx, ev types.Event,
) (retryAfter time.Duration, done bool, err error) {
	origin := fmt.Sprintf("%d", w.origin)

	w.providersMu.Lock()
	providers := make([]*providerContext, 0, len(w.providers))
	for _, pc := range w.providers {
		providers = append(providers, pc)
	}
	w.providersMu.Unlock()

	if len(providers) == 0 {
		// No providers subscribed; nothing to apply, but the event row
		// and self-confirm already appended above are enough.
		return 0, true, nil
	}

	// Preparation: dial missing connections.
	if retryAfter, ok := w.dialMissing(ctx, stop, providers); !ok {
		return retryAfter, false, nil
	}

	// Preparation: provider-up-to-date check (spec.md section 9, open
	// requirement). A provider that is neither the origin of this
	// event nor the node we received it from must have already caught
	// up to this seqno.
	for _, pc := range providers {
		if pc.node == ev.Origin || pc.node == w.origin {
			continue
		}
		caughtUp, err := w.providerCaughtUp(ctx, pc, ev)
		if err != nil && !errors.Is(err, ErrProviderNotCaughtUp) {
			return 0, false, err
		}
		if !caughtUp {
			log.WithField("provider", pc.node).Warn("provider has not caught up to this event, retrying")
			return pc.retryInterval(w.config), false, nil
		}
	}

	// Build the new-SYNC qualification once, reused for every
	// provider/set pair (see SPEC_FULL.md "Supplemented Features").
	newSyncQual := sqlbuild.NewSyncQualification(ev.Snapshot)

	type dispatched struct {
		pc    *providerContext
		sets  []types.SetID
		where string
	}
	var plan []dispatched

	for _, pc := range providers {
		var setPreds []sqlbuild.SetPredicate
		var setIDs []types.SetID
		for _, ps := range pc.sets {
			tables, err := w.registry.TablesForSet(ctx, ps.SetID)
			if err != nil {
				return 0, false, err
			}
			cursor, err := w.loadSetsyncCursor(ctx, tx, ps.SetID)
			if err != nil {
				return 0, false, err
			}
			setPreds = append(setPreds, sqlbuild.SetPredicate{
				TableIDs:      tables,
				SetsyncClause: sqlbuild.SetsyncQualification(cursor),
			})
			setIDs = append(setIDs, ps.SetID)
		}
		if len(setPreds) == 0 {
			continue
		}
		where := sqlbuild.BuildWhere(newSyncQual, setPreds)
		plan = append(plan, dispatched{pc: pc, sets: setIDs, where: where})
	}

	if len(plan) == 0 {
		return 0, true, nil
	}

	// Dispatch: mark the workgroup BUSY before any helper starts
	// fetching, then arm each planned helper and run the apply loop.
	start := time.Now()
	w.group.setActiveHelpers(len(plan))
	w.group.setStatus(statusBusy)
	for _, d := range plan {
		d.pc.helper.dispatch(d.where)
	}

	applyErr := w.applyLoop(ctx, tx)

	metrics.SyncApplyDurations.WithLabelValues(origin).Observe(time.Since(start).Seconds())

	for _, pc := range providers {
		pc.helper.setStatus(helperIdle)
	}
	w.group.setStatus(statusIdle)
	for _, pc := range providers {
		pc.helper.fqnames.Clear()
	}

	if applyErr != nil {
		metrics.SyncApplyErrors.WithLabelValues(origin).Inc()
		return syncRetryDelay, false, nil
	}

	// On success: advance setsync for every participating set.
	var allSets []types.SetID
	for _, d := range plan {
		allSets = append(allSets, d.sets...)
	}
	if err := w.advanceSetsync(ctx, tx, allSets, ev.Snapshot, ev.Seqno); err != nil {
		return syncRetryDelay, false, nil
	}

	return 0, true, nil
}

// applyLoop implements spec.md section 4.4's apply loop: block for
// repldata, apply every ACTION, count DONE/ERROR, abort the workgroup
// on the first error, loop until every helper has reported in.
func (w *Worker) applyLoop(ctx context.Context, tx pgx.Tx) error {
	origin := fmt.Sprintf("%d", w.origin)
	var sawError bool

	for {
		lines := w.group.drainRepldata()

		for _, line := range lines {
			switch line.Kind {
			case LineAction:
				tag, err := tx.Exec(ctx, line.SQL)
				if err != nil || tag.RowsAffected() != 1 {
					sawError = true
					w.group.setStatus(statusAbort)
				} else {
					metrics.SyncRowsApplied.WithLabelValues(origin).Inc()
				}
			case LineDone:
				if left := w.group.decrementActiveHelpers(); left < 0 {
					w.group.setActiveHelpers(0)
				}
			case LineError:
				sawError = true
				w.group.setStatus(statusAbort)
				w.group.decrementActiveHelpers()
			}
		}

		w.group.returnLines(lines)

		w.group.mu.Lock()
		remaining := w.group.activeHelper
		w.group.mu.Unlock()
		if remaining <= 0 {
			break
		}
	}

	if sawError {
		return errors.New("sync apply aborted")
	}
	return nil
}

// loadSetsyncCursor reads the persisted setsync cursor for a set,
// defaulting to a zero cursor if none exists yet (first SYNC after
// subscription, ahead of copy_set populating it).
func (w *Worker) loadSetsyncCursor(ctx context.Context, tx pgx.Tx, set types.SetID) (types.SetsyncCursor, error) {
	schema := w.registry.SchemaQualifier()
	row := tx.QueryRow(ctx, fmt.Sprintf(
		"SELECT ssy_seqno, ssy_minxid, ssy_maxxid, ssy_xip, ssy_action_list FROM %s.sl_setsync WHERE ssy_setid = $1",
		schema), set)

	var cursor types.SetsyncCursor
	cursor.SetID = set
	var xip, actionList string
	if err := row.Scan(&cursor.Seqno, &cursor.Snapshot.Min, &cursor.Snapshot.Max, &xip, &actionList); err != nil {
		if err == pgx.ErrNoRows {
			return cursor, nil
		}
		return cursor, fmt.Errorf("load setsync cursor for set %d: %w", set, err)
	}
	cursor.Snapshot.InProgress = parseInt64List(xip)
	cursor.ActionList = parseInt64List(actionList)
	return cursor, nil
}

// advanceSetsync executes the single UPDATE that moves every
// participating set's cursor to the new snapshot (spec.md section 4.4
// "On success"). A row-count mismatch aborts with retry.
func (w *Worker) advanceSetsync(
	ctx context.Context, tx pgx.Tx, sets []types.SetID, snap types.Snapshot, seqno int64,
) error {
	if len(sets) == 0 {
		return nil
	}
	schema := w.registry.SchemaQualifier()
	idList := ""
	for i, s := range sets {
		if i > 0 {
			idList += ", "
		}
		idList += fmt.Sprintf("%d", s)
	}

	tag, err := tx.Exec(ctx, sqlbuild.BuildSetsyncUpdate(schema, idList),
		seqno, snap.Min, snap.Max, inProgressText(snap.InProgress), "", w.origin)
	if err != nil {
		return fmt.Errorf("advance setsync: %w", err)
	}
	if int(tag.RowsAffected()) != len(sets) {
		return fmt.Errorf("setsync update affected %d rows, expected %d", tag.RowsAffected(), len(sets))
	}
	return nil
}

// providerCaughtUp implements the stubbed check from spec.md section
// 9. A real implementation polls a lightweight status query against
// the provider; here it's surfaced as a named seam so the retryable
// -error contract is visible at the call site.
func (w *Worker) providerCaughtUp(ctx context.Context, pc *providerContext, ev types.Event) (bool, error) {
	return false, errors.Wrapf(ErrProviderNotCaughtUp, "provider %d, event %d/%d", pc.node, ev.Origin, ev.Seqno)
}

func (pc *providerContext) retryInterval(cfg Config) time.Duration {
	if pc.config.ConnRetry > 0 {
		return pc.config.ConnRetry
	}
	return cfg.DefaultConnRetry
}

func parseInt64List(s string) []int64 {
	if s == "" {
		return nil
	}
	var out []int64
	var cur int64
	neg := false
	started := false
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
