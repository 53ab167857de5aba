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

// cursorQueryTemplate declares the server-side cursor a Helper opens
// per spec.md section 4.7. Both log tables are queried unconditionally
// and UNIONed, matching remote_worker.c's approach to sl_log_1/sl_log_2
// rotation (see SPEC_FULL.md "Supplemented Features"); the qualification
// predicate (which always constrains log_tableid) is what keeps the
// result set correct regardless of which table currently holds live
// rows.
const cursorQueryTemplate = `
SELECT log_origin, log_xid, log_tableid, log_actionseq, log_cmdtype, log_cmddata
FROM (
  SELECT log_origin, log_xid, log_tableid, log_actionseq, log_cmdtype, log_cmddata FROM %[1]s.sl_log_1
  UNION ALL
  SELECT log_origin, log_xid, log_tableid, log_actionseq, log_cmdtype, log_cmddata FROM %[1]s.sl_log_2
) t
WHERE %[2]s
ORDER BY log_actionseq`

// BuildCursorQuery fills in the provider-side schema and the
// qualification predicate produced by BuildWhere.
func BuildCursorQuery(schema, where string) string {
	return fmt.Sprintf(cursorQueryTemplate, schema, where)
}

// DeclareCursorSQL wraps a query in a DECLARE ... CURSOR statement for
// database/sql drivers that support server-side cursors via SQL
// (spec.md section 4.7 step 3).
func DeclareCursorSQL(cursorName, query string) string {
	return fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", cursorName, query)
}

// FetchSQL fetches up to n rows from an open cursor.
func FetchSQL(cursorName string, n int) string {
	return fmt.Sprintf("FETCH FORWARD %d FROM %s", n, cursorName)
}

// CloseCursorSQL closes an open cursor.
func CloseCursorSQL(cursorName string) string {
	return fmt.Sprintf("CLOSE %s", cursorName)
}

// setsyncUpdateTemplate advances the setsync cursor for every active
// set in the workgroup to the new snapshot, per spec.md section 4.4's
// "On success" step. It must affect exactly as many rows as sets; a
// mismatch means some set's row went missing and the caller aborts.
const setsyncUpdateTemplate = `
UPDATE %s.sl_setsync
SET ssy_seqno = $1, ssy_minxid = $2, ssy_maxxid = $3, ssy_xip = $4, ssy_action_list = $5
WHERE ssy_setid IN (%s) AND ssy_origin = $6`

// BuildSetsyncUpdate fills in the schema and the list of set ids being
// advanced.
func BuildSetsyncUpdate(schema, setIDList string) string {
	return fmt.Sprintf(setsyncUpdateTemplate, schema, setIDList)
}

// eventInsertTemplate appends the event record with its payload
// columns, per spec.md section 4.2 step 3(b).
const eventInsertTemplate = `
INSERT INTO %s.sl_event
  (ev_origin, ev_seqno, ev_timestamp, ev_minxid, ev_maxxid, ev_xip, ev_type,
   ev_data1, ev_data2, ev_data3, ev_data4, ev_data5, ev_data6, ev_data7, ev_data8)
VALUES ($1, $2, now(), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// BuildEventInsert fills in the schema.
func BuildEventInsert(schema string) string {
	return fmt.Sprintf(eventInsertTemplate, schema)
}

// selfConfirmInsertTemplate inserts the self-confirmation row appended
// alongside the event insert, per spec.md section 4.2 step 3(c).
const selfConfirmInsertTemplate = `
INSERT INTO %s.sl_confirm (con_origin, con_received, con_seqno, con_timestamp)
VALUES ($1, $2, $3, now())`

// BuildSelfConfirmInsert fills in the schema.
func BuildSelfConfirmInsert(schema string) string {
	return fmt.Sprintf(selfConfirmInsertTemplate, schema)
}

// notifyTemplate notifies the event and confirm channels for a
// cluster, per spec.md section 4.2 step 3(a) and section 6.
const notifyTemplate = `NOTIFY "_%s_Event"; NOTIFY "_%s_Confirm"`

// BuildNotify fills in the cluster name.
func BuildNotify(cluster string) string {
	return fmt.Sprintf(notifyTemplate, cluster, cluster)
}

// forwardConfirmTemplate calls the stored procedure that persists a
// forwarded confirm, per spec.md section 4.6.
const forwardConfirmTemplate = `SELECT %s.forwardConfirm(origin := $1, receiver := $2, seqno := $3, ts := $4)`

// BuildForwardConfirm fills in the schema.
func BuildForwardConfirm(schema string) string {
	return fmt.Sprintf(forwardConfirmTemplate, schema)
}
