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

//go:build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/ioguix/slony1-engine/internal/confirmcache"
	"github.com/ioguix/slony1-engine/internal/queue"
	"github.com/ioguix/slony1-engine/internal/scheduler"
	"github.com/ioguix/slony1-engine/internal/stdpool"
	"github.com/ioguix/slony1-engine/internal/stopper"
	"github.com/ioguix/slony1-engine/internal/workerconfig"
)

var globalSet = wire.NewSet(
	newRegistry,
	scheduler.New,
	stdpool.OpenLocalPool,
	queue.New,
	confirmcache.New,
	newWorker,
	wire.Struct(new(App), "*"),
)

func newApp(ctx *stopper.Context, cfg *workerconfig.Config) (*App, func(), error) {
	panic(wire.Build(globalSet))
}
