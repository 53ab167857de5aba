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

package copyset

import "testing"

func TestParseInt64ListRoundTripsThroughJoinInts(t *testing.T) {
	in := []int64{7, -8, 0, 1234}
	got := parseInt64List(joinInts(in))
	if len(got) != len(in) {
		t.Fatalf("expected %+v, got %+v", in, got)
	}
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("expected %+v, got %+v", in, got)
		}
	}
}

func TestJoinIntsEmpty(t *testing.T) {
	if got := joinInts(nil); got != "" {
		t.Fatalf("expected empty string for nil input, got %q", got)
	}
}

func TestParseInt64ListEmptyString(t *testing.T) {
	if got := parseInt64List(""); got != nil {
		t.Fatalf("expected nil for an empty string, got %+v", got)
	}
}
