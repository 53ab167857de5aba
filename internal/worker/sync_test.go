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

import "testing"

func TestParseInt64ListEmpty(t *testing.T) {
	if got := parseInt64List(""); got != nil {
		t.Fatalf("expected nil for an empty string, got %+v", got)
	}
}

func TestParseInt64ListSingleton(t *testing.T) {
	got := parseInt64List("42")
	if len(got) != 1 || got[0] != 42 {
		t.Fatalf("expected [42], got %+v", got)
	}
}

func TestParseInt64ListCommaSeparatedWithNegatives(t *testing.T) {
	got := parseInt64List("1,-2,300")
	want := []int64{1, -2, 300}
	if len(got) != len(want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	}
}

func TestParseInt64ListTrailingComma(t *testing.T) {
	got := parseInt64List("5,6,")
	want := []int64{5, 6}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestInProgressTextEmpty(t *testing.T) {
	if got := inProgressText(nil); got != "" {
		t.Fatalf("expected empty string for nil xip, got %q", got)
	}
}

func TestInProgressTextJoinsWithCommas(t *testing.T) {
	if got := inProgressText([]int64{10, 11, 12}); got != "10,11,12" {
		t.Fatalf("expected %q, got %q", "10,11,12", got)
	}
}
