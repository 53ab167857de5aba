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

// Package stopper provides a minimal goroutine-lifecycle helper. The
// teacher's internal/util/stdpool and internal/source/logical packages
// call into a stopper.Context at every background-goroutine call site
// (ctx.Go(func() error {...}), <-ctx.Stopping()), but the package
// itself wasn't part of the retrieved pack; this reconstructs the
// contract from those call sites so the Worker and Helper can use the
// same idiom instead of hand-rolling sync.WaitGroup bookkeeping at
// every spawn.
package stopper

import (
	"context"
	"sync"
)

// Context wraps a context.Context with goroutine tracking: Go spawns
// a tracked goroutine, Stop requests cancellation, and StopAndWait
// requests cancellation and blocks until every tracked goroutine has
// returned.
type Context struct {
	context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	wg       sync.WaitGroup
	firstErr error
}

// WithContext wraps parent in a new stopper.Context.
func WithContext(parent context.Context) *Context {
	ctx, cancel := context.WithCancel(parent)
	return &Context{Context: ctx, cancel: cancel}
}

// Go runs fn in a tracked goroutine. If fn returns a non-nil error,
// the Context is canceled and the error is recorded (first one wins).
func (c *Context) Go(fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(); err != nil {
			c.mu.Lock()
			if c.firstErr == nil {
				c.firstErr = err
			}
			c.mu.Unlock()
			c.cancel()
		}
	}()
}

// Stopping returns a channel that is closed when the Context has been
// asked to stop.
func (c *Context) Stopping() <-chan struct{} {
	return c.Context.Done()
}

// Stop requests cancellation without waiting for goroutines to exit.
func (c *Context) Stop() { c.cancel() }

// Wait blocks until every goroutine spawned via Go has returned and
// returns the first error any of them reported.
func (c *Context) Wait() error {
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firstErr
}

// StopAndWait cancels the Context and waits for all goroutines to
// finish, returning the first reported error.
func (c *Context) StopAndWait() error {
	c.cancel()
	return c.Wait()
}
