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

	"github.com/ioguix/slony1-engine/internal/copyset"
	"github.com/ioguix/slony1-engine/internal/sqlbuild"
	"github.com/ioguix/slony1-engine/internal/stopper"
	"github.com/ioguix/slony1-engine/internal/types"
)

// enableSubscriptionInitialBackoff and ...Cap implement spec.md
// section 4.5's copy_set retry: "start 15s, double up to 60s cap".
const (
	enableSubscriptionInitialBackoff = 15 * time.Second
	enableSubscriptionBackoffCap     = 60 * time.Second
)

// applyConfigEvent implements spec.md section 4.5: mutate the
// in-process registry, then append the matching stored-procedure call
// to tx. ENABLE_SUBSCRIPTION additionally performs copy_set before the
// caller commits, retrying with exponential backoff by rolling back
// and reopening tx itself (the open transaction it is handed is
// discarded on each retry; the caller commits whatever tx this
// function returns control with committed or not at all).
func (w *Worker) applyConfigEvent(
	ctx context.Context, stop *stopper.Context, tx pgx.Tx, schema string, ev types.Event,
) error {
	if err := w.registry.ApplyConfigEvent(ev); err != nil {
		return errors.Wrap(err, "registry")
	}

	switch ev.Type {
	case types.EventStoreNode:
		_, err := tx.Exec(ctx, sqlbuild.BuildStoreNodeCall(schema), ev.Args[0], ev.Args[1])
		return wrapProc(err, "storeNode_int")

	case types.EventEnableNode:
		_, err := tx.Exec(ctx, sqlbuild.BuildEnableNodeCall(schema), ev.Args[0])
		return wrapProc(err, "enableNode_int")

	case types.EventStorePath:
		_, err := tx.Exec(ctx, sqlbuild.BuildStorePathCall(schema), ev.Args[0], ev.Args[1], ev.Args[2], ev.Args[3])
		return wrapProc(err, "storePath_int")

	case types.EventStoreListen:
		_, err := tx.Exec(ctx, sqlbuild.BuildStoreListenCall(schema), ev.Args[0], ev.Args[1], ev.Args[2])
		return wrapProc(err, "storeListen_int")

	case types.EventStoreSet:
		_, err := tx.Exec(ctx, sqlbuild.BuildStoreSetCall(schema), ev.Args[0], ev.Args[1], ev.Args[2])
		return wrapProc(err, "storeSet_int")

	case types.EventSubscribeSet:
		_, err := tx.Exec(ctx, sqlbuild.BuildSubscribeSetCall(schema), ev.Args[0], ev.Args[1], ev.Args[2], ev.Args[3])
		return wrapProc(err, "subscribeSet_int")

	case types.EventEnableSubscription:
		return w.enableSubscription(ctx, stop, tx, schema, ev)

	case types.EventSetAddTable:
		// Deferred per spec.md section 4.5: no stored-proc call here.
		return nil

	default:
		log.Warnf("applyConfigEvent: unrecognized event type %q, ignoring", ev.Type)
		return nil
	}
}

func wrapProc(err error, name string) error {
	if err != nil {
		return errors.Wrapf(err, "%s", name)
	}
	return nil
}

// enableSubscription implements spec.md section 4.5's
// ENABLE_SUBSCRIPTION branch: only this node's own subscription
// matters; copy_set runs only if the subscription's provider is the
// node this Worker replicates from, retried with exponential backoff,
// rolling back the partial local transaction between attempts. The
// caller's outer transaction (the one carrying the event/self-confirm
// rows) is what gets rolled back and reopened here, since copy_set
// must be part of the same commit as ENABLE_SUBSCRIPTION taking
// effect (spec.md section 4.5: "perform copy_set before committing").
func (w *Worker) enableSubscription(
	ctx context.Context, stop *stopper.Context, tx pgx.Tx, schema string, ev types.Event,
) error {
	receiver, err := parseNodeArg(ev.Args[2])
	if err != nil {
		return err
	}
	if receiver != w.registry.SelfID() {
		return nil
	}
	provider, err := parseNodeArg(ev.Args[1])
	if err != nil {
		return err
	}
	if provider != w.origin {
		// This event arrived via the origin we're replicating, but the
		// subscription it enables is served by a different provider;
		// nothing for this Worker to copy.
		return nil
	}

	setID, err := parseSetArg(ev.Args[0])
	if err != nil {
		return err
	}
	origin, err := resolveSetOrigin(w.registry, setID)
	if err != nil {
		return errors.Wrap(err, "enableSubscription")
	}

	pc := w.findOrCreateProvider(stop, provider)
	for {
		retryAfter, ready := w.dialMissing(ctx, stop, []*providerContext{pc})
		if ready {
			break
		}
		if status := w.scheduler.Sleep(ctx, w.origin, retryAfter); status != types.StatusOK {
			return errors.New("enableSubscription: aborted waiting for provider connection")
		}
	}

	tables, err := w.loadSetTables(ctx, tx, schema, setID)
	if err != nil {
		return errors.Wrap(err, "enableSubscription: load set tables")
	}

	req := copyset.Request{
		Set:          setID,
		Origin:       origin,
		Provider:     provider,
		IsOrigin:     provider == origin,
		Self:         w.registry.SelfID(),
		Tables:       tables,
		ProviderConn: pc.conn,
		Schema:       schema,
	}

	backoff := enableSubscriptionInitialBackoff
	for attempt := 1; ; attempt++ {
		err := copyset.Run(ctx, w.local, req)
		if err == nil {
			return nil
		}

		log.WithError(err).WithField("set", setID).WithField("attempt", attempt).
			Warn("copy_set failed, retrying after backoff")

		if status := w.scheduler.Sleep(ctx, w.origin, backoff); status != types.StatusOK {
			return errors.Wrap(err, "copy_set: aborted during backoff")
		}
		if backoff < enableSubscriptionBackoffCap {
			backoff *= 2
			if backoff > enableSubscriptionBackoffCap {
				backoff = enableSubscriptionBackoffCap
			}
		}
	}
}

// loadSetTables resolves every table captured in a set to its id and
// fully-qualified name from the registry. Columns are not looked up
// here; copy_set discovers them from the provider per table.
func (w *Worker) loadSetTables(ctx context.Context, tx pgx.Tx, schema string, set types.SetID) ([]copyset.Table, error) {
	ids, err := w.registry.TablesForSet(ctx, set)
	if err != nil {
		return nil, err
	}

	out := make([]copyset.Table, 0, len(ids))
	for _, id := range ids {
		fq, err := w.registry.TableFQName(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, copyset.Table{
			ID:     id,
			FQName: fq,
		})
	}
	return out, nil
}

// resolveSetOrigin returns a set's origin-node-id as recorded by
// STORE_SET. ENABLE_SUBSCRIPTION's own args never carry the origin
// (only sub_set/sub_provider/sub_receiver/sub_forward), so copy_set's
// choice between reconstructing from scratch and copying a slave's
// setsync row verbatim (spec.md section 4.8) depends on this lookup
// rather than on any ENABLE_SUBSCRIPTION argument.
func resolveSetOrigin(reg types.Registry, setID types.SetID) (types.NodeID, error) {
	set, ok := reg.Set(setID)
	if !ok {
		return 0, errors.Errorf("set %d origin unknown, STORE_SET not yet applied", setID)
	}
	return set.OriginNode, nil
}

func parseNodeArg(s string) (types.NodeID, error) {
	var v int32
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, errors.Wrapf(err, "invalid node id %q", s)
	}
	return types.NodeID(v), nil
}

func parseSetArg(s string) (types.SetID, error) {
	var v int32
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, errors.Wrapf(err, "invalid set id %q", s)
	}
	return types.SetID(v), nil
}
