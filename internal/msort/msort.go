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

// Package msort contains utility functions for de-duplicating batches
// of keyed, timestamped records. Adapted from the teacher's
// UniqueByKey (internal/util/msort), re-targeted at the
// "highest-seqno-wins per key" problem that both the confirm cache
// (spec.md section 4.6) and the message queue's CONFIRM-coalescing
// rule (spec.md section 4.1) need.
package msort

import "github.com/ioguix/slony1-engine/internal/types"

// UniqueConfirmsByKey implements a "highest seqno wins" approach to
// removing Confirms with duplicate (origin, receiver) keys from the
// input slice. If two Confirms share a key, the one with the higher
// Seqno is kept, wherever it sits in the slice. The modified slice is returned.
func UniqueConfirmsByKey(x []types.Confirm) []types.Confirm {
	seenIdx := make(map[types.ConfirmKey]int, len(x))

	dest := len(x)
	for src := len(x) - 1; src >= 0; src-- {
		key := x[src].Key()

		if curIdx, found := seenIdx[key]; found {
			if x[src].Seqno > x[curIdx].Seqno {
				x[curIdx] = x[src]
			}
		} else {
			dest--
			seenIdx[key] = dest
			x[dest] = x[src]
		}
	}

	return x[dest:]
}
