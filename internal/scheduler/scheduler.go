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

// Package scheduler provides a process-wide liveness status and a
// cancellable sleep, implementing the types.Scheduler contract named
// in spec.md section 6. The real scheduler is an external collaborator
// out of scope for this core; this is a small, concrete implementation
// usable standalone and by tests.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ioguix/slony1-engine/internal/types"
)

// Scheduler implements types.Scheduler with an atomic status flag.
type Scheduler struct {
	status atomic.Int32
}

var _ types.Scheduler = (*Scheduler)(nil)

// New returns a Scheduler in the OK state.
func New() *Scheduler {
	return &Scheduler{}
}

// Status implements types.Scheduler.
func (s *Scheduler) Status() types.SchedulerStatus {
	return types.SchedulerStatus(s.status.Load())
}

// RequestShutdown moves the scheduler to StatusShutdown, asking
// workers to exit gracefully after finishing their current SQL call.
func (s *Scheduler) RequestShutdown() {
	s.status.Store(int32(types.StatusShutdown))
}

// RequestTerminate moves the scheduler to StatusTerminate, asking
// workers to exit immediately.
func (s *Scheduler) RequestTerminate() {
	s.status.Store(int32(types.StatusTerminate))
}

// Sleep implements types.Scheduler.
func (s *Scheduler) Sleep(ctx context.Context, _ types.NodeID, d time.Duration) types.SchedulerStatus {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return s.Status()
}
