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

import "fmt"

// The functions in this file build the stored-procedure calls spec.md
// section 4.5's table names for each configuration event type. Every
// one is appended to the same transaction that inserted the event row
// (internal/worker/events.go's appendEventPrelude), matching
// remote_worker.c's single-transaction commit of event-plus-effect.

func BuildStoreNodeCall(schema string) string {
	return fmt.Sprintf("SELECT %s.storeNode_int($1, $2)", schema)
}

func BuildEnableNodeCall(schema string) string {
	return fmt.Sprintf("SELECT %s.enableNode_int($1)", schema)
}

func BuildStorePathCall(schema string) string {
	return fmt.Sprintf("SELECT %s.storePath_int($1, $2, $3, $4)", schema)
}

func BuildStoreListenCall(schema string) string {
	return fmt.Sprintf("SELECT %s.storeListen_int($1, $2, $3)", schema)
}

func BuildStoreSetCall(schema string) string {
	return fmt.Sprintf("SELECT %s.storeSet_int($1, $2, $3)", schema)
}

func BuildSubscribeSetCall(schema string) string {
	return fmt.Sprintf("SELECT %s.subscribeSet_int($1, $2, $3, $4)", schema)
}

// BuildSetAddTableCall installs one table's definition locally during
// copy_set (spec.md section 4.8 step 1).
func BuildSetAddTableCall(schema string) string {
	return fmt.Sprintf("SELECT %s.setAddTable_int($1, $2, $3)", schema)
}

// BuildSetsyncInsert inserts the reconstructed or copied setsync row
// for a newly subscribed set (spec.md section 4.8, final step).
func BuildSetsyncInsert(schema string) string {
	return fmt.Sprintf(`
INSERT INTO %s.sl_setsync (ssy_setid, ssy_origin, ssy_seqno, ssy_minxid, ssy_maxxid, ssy_xip, ssy_action_list)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, schema)
}

// BuildMaxSyncSeqnoQuery finds the highest SYNC event seqno recorded
// for an origin, used when this node's provider for a set is that
// set's origin (spec.md section 4.8 "reconstruct from scratch").
func BuildMaxSyncSeqnoQuery(schema string) string {
	return fmt.Sprintf(`
SELECT ev_seqno, ev_minxid, ev_maxxid, ev_xip
FROM %s.sl_event
WHERE ev_origin = $1 AND ev_type = 'SYNC'
ORDER BY ev_seqno DESC
LIMIT 1`, schema)
}

// BuildProviderSetsyncQuery reads a provider's own setsync row for a
// set verbatim, used when this node's provider for a set is another
// slave rather than the set's origin (spec.md section 4.8 "copy that
// slave's existing setsync row verbatim").
func BuildProviderSetsyncQuery(schema string) string {
	return fmt.Sprintf(
		"SELECT ssy_seqno, ssy_minxid, ssy_maxxid, ssy_xip, ssy_action_list FROM %s.sl_setsync WHERE ssy_setid = $1",
		schema)
}
