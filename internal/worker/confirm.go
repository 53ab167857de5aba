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

	log "github.com/sirupsen/logrus"

	"github.com/ioguix/slony1-engine/internal/sqlbuild"
	"github.com/ioguix/slony1-engine/internal/types"
)

// forwardConfirm implements spec.md section 4.6: a confirm is only
// worth persisting and forwarding if it advances what this node
// already knows about the (origin, receiver) pair. The check and the
// cache update happen in confirmcache.Admit, under its own lock, so
// two concurrent confirms for the same pair can't both decide to
// forward a stale one.
//
// Unlike processEvent, a rejected or failed forward is not fatal to
// the Worker: confirms are advisory, re-derivable from the next SYNC's
// self-confirm row, so a forwarding failure is logged and dropped
// rather than propagated.
func (w *Worker) forwardConfirm(ctx context.Context, c types.Confirm) {
	if !w.confirms.Admit(c) {
		log.WithField("origin", c.Origin).WithField("receiver", c.Receiver).
			Tracef("dropping stale confirm at seqno %d", c.Seqno)
		return
	}

	schema := w.registry.SchemaQualifier()
	tx, err := w.local.Begin(ctx)
	if err != nil {
		log.WithError(err).Warn("forwardConfirm: could not begin local transaction")
		return
	}

	if _, err := tx.Exec(ctx, sqlbuild.BuildForwardConfirm(schema), c.Origin, c.Receiver, c.Seqno, c.Timestamp); err != nil {
		log.WithError(err).WithField("origin", c.Origin).WithField("receiver", c.Receiver).
			Warn("forwardConfirm: could not persist confirm")
		_ = tx.Rollback(ctx)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		log.WithError(err).Warn("forwardConfirm: could not commit confirm")
	}
}
