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

package ident

import (
	"context"
	"testing"

	"github.com/ioguix/slony1-engine/internal/types"
)

type fakeResolver struct {
	calls map[types.TableID]int
	names map[types.TableID]string
}

func (f *fakeResolver) TableFQName(_ context.Context, id types.TableID) (string, error) {
	f.calls[id]++
	return f.names[id], nil
}

func TestTableRaw(t *testing.T) {
	cases := []struct {
		tbl  Table
		want string
	}{
		{NewTable("", "foo"), "foo"},
		{NewTable("public", "foo"), "public.foo"},
	}
	for _, c := range cases {
		if got := c.tbl.Raw(); got != c.want {
			t.Fatalf("Raw() = %q, want %q", got, c.want)
		}
		if got := c.tbl.String(); got != c.want {
			t.Fatalf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestFQNameCacheMemoizesAndClears(t *testing.T) {
	resolver := &fakeResolver{
		calls: map[types.TableID]int{},
		names: map[types.TableID]string{7: "public.widgets"},
	}
	cache := NewFQNameCache(resolver)

	tbl, err := cache.Lookup(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tbl.Raw() != "public.widgets" {
		t.Fatalf("expected resolved name, got %q", tbl.Raw())
	}

	if _, err := cache.Lookup(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error on cached lookup: %v", err)
	}
	if resolver.calls[7] != 1 {
		t.Fatalf("expected the resolver to be called exactly once before a clear, got %d calls", resolver.calls[7])
	}

	cache.Clear()

	if _, err := cache.Lookup(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error on post-clear lookup: %v", err)
	}
	if resolver.calls[7] != 2 {
		t.Fatalf("expected Clear to force a fresh resolve, got %d calls", resolver.calls[7])
	}
}
