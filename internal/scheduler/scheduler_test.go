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

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/ioguix/slony1-engine/internal/types"
)

func TestSchedulerStartsOK(t *testing.T) {
	s := New()
	if s.Status() != types.StatusOK {
		t.Fatalf("expected a fresh scheduler to report StatusOK")
	}
}

func TestRequestShutdownAndTerminate(t *testing.T) {
	s := New()
	s.RequestShutdown()
	if s.Status() != types.StatusShutdown {
		t.Fatalf("expected StatusShutdown after RequestShutdown")
	}
	s.RequestTerminate()
	if s.Status() != types.StatusTerminate {
		t.Fatalf("expected StatusTerminate after RequestTerminate")
	}
}

func TestSleepReturnsAfterDuration(t *testing.T) {
	s := New()
	start := time.Now()
	status := s.Sleep(context.Background(), 1, 20*time.Millisecond)
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("expected Sleep to block for at least the requested duration")
	}
	if status != types.StatusOK {
		t.Fatalf("expected StatusOK after an uncancelled sleep, got %v", status)
	}
}

func TestSleepReturnsEarlyOnContextCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	start := time.Now()
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	s.Sleep(ctx, 1, time.Hour)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected Sleep to return promptly once the context is canceled, took %v", elapsed)
	}
}
