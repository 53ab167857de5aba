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

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ioguix/slony1-engine/internal/sqlbuild"
	"github.com/ioguix/slony1-engine/internal/stopper"
	"github.com/ioguix/slony1-engine/internal/types"
)

// processEvent implements spec.md section 4.2 steps 3-6: open a local
// transaction, append the notify/event/self-confirm statements, then
// dispatch to the SYNC retry loop or to configuration-event handling.
func (w *Worker) processEvent(ctx context.Context, stop *stopper.Context, ev types.Event) error {
	schema := w.registry.SchemaQualifier()
	cluster := w.registry.ClusterName()

	for {
		tx, err := w.local.Begin(ctx)
		if err != nil {
			return errors.Wrap(err, "begin local transaction")
		}

		if err := w.appendEventPrelude(ctx, tx, schema, cluster, ev); err != nil {
			_ = tx.Rollback(ctx)
			return errors.Wrap(err, "append event prelude")
		}

		if ev.Type == types.EventSync {
			retryAfter, done, err := w.runSync(ctx, stop, tx, ev)
			if err != nil {
				_ = tx.Rollback(ctx)
				return errors.Wrap(err, "sync apply")
			}
			if done {
				if err := tx.Commit(ctx); err != nil {
					return errors.Wrap(err, "commit sync")
				}
				return nil
			}
			_ = tx.Rollback(ctx)
			log.WithField("origin", w.origin).WithField("retryAfter", retryAfter).
				Info("sync did not complete, retrying after backoff")
			if status := w.scheduler.Sleep(ctx, w.origin, retryAfter); status != types.StatusOK {
				return nil
			}
			continue
		}

		// Configuration event (spec.md section 4.5).
		if err := w.applyConfigEvent(ctx, stop, tx, schema, ev); err != nil {
			_ = tx.Rollback(ctx)
			// Unrecoverable local DB error during a configuration event
			// is fatal: the local DB is authoritative (spec.md section 7).
			return errors.Wrap(err, "apply configuration event")
		}
		if err := tx.Commit(ctx); err != nil {
			return errors.Wrap(err, "commit configuration event")
		}
		return nil
	}
}

// appendEventPrelude appends the statements common to every event:
// NOTIFY both channels, insert the event row, insert the
// self-confirmation row (spec.md section 4.2 step 3).
func (w *Worker) appendEventPrelude(
	ctx context.Context, tx pgx.Tx, schema, cluster string, ev types.Event,
) error {
	if _, err := tx.Exec(ctx, sqlbuild.BuildNotify(cluster)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	_, err := tx.Exec(ctx, sqlbuild.BuildEventInsert(schema),
		ev.Origin, ev.Seqno, ev.Snapshot.Min, ev.Snapshot.Max, inProgressText(ev.Snapshot.InProgress), string(ev.Type),
		ev.Args[0], ev.Args[1], ev.Args[2], ev.Args[3], ev.Args[4], ev.Args[5], ev.Args[6], ev.Args[7])
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	_, err = tx.Exec(ctx, sqlbuild.BuildSelfConfirmInsert(schema), ev.Origin, w.registry.SelfID(), ev.Seqno)
	if err != nil {
		return fmt.Errorf("insert self confirm: %w", err)
	}
	return nil
}

func inProgressText(xip []int64) string {
	if len(xip) == 0 {
		return ""
	}
	s := ""
	for i, x := range xip {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", x)
	}
	return s
}
