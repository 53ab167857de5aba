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

// Package sqlbuild reconstructs SQL statements and qualification
// predicates from captured log rows. Adapted from the teacher's
// sink.go (upsertRow/deleteRow's strings.Builder statement assembly)
// and resolved_table.go (fmt.Sprintf-templated queries), generalized
// from CDC upsert/delete semantics to Slony's already-preformed
// cmddata clauses (spec.md section 4.7).
package sqlbuild

import (
	"fmt"
	"strings"

	"github.com/ioguix/slony1-engine/internal/types"
)

// ReconstructAction builds the single SQL statement for one captured
// log row, per spec.md section 4.7:
//
//	I -> insert into <fqname> <cmddata>;
//	U -> update <fqname> set <cmddata>;
//	D -> delete from <fqname> where <cmddata>;
//
// Two comment lines recording log_xid and log_actionseq are prepended
// to aid debugging, matching the source.
func ReconstructAction(fqname string, row types.LogRow) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "-- xid=%d\n", row.XID)
	fmt.Fprintf(&b, "-- actionseq=%d\n", row.ActionSeq)

	switch row.Kind {
	case types.ActionInsert:
		fmt.Fprintf(&b, "insert into %s %s;", fqname, row.CmdData)
	case types.ActionUpdate:
		fmt.Fprintf(&b, "update %s set %s;", fqname, row.CmdData)
	case types.ActionDelete:
		fmt.Fprintf(&b, "delete from %s where %s;", fqname, row.CmdData)
	default:
		return "", fmt.Errorf("unrecognized log action kind %q", row.Kind)
	}

	return b.String(), nil
}
