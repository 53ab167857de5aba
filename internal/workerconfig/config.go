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

// Package workerconfig is the user-visible configuration for running
// the replication core, bound from the command line the way the
// teacher's internal/source/server.Config is: a Bind(*pflag.FlagSet)
// method registering flags, a Preflight() error validating the
// result.
package workerconfig

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/ioguix/slony1-engine/internal/worker"
)

// Config contains every flag needed to start one slon process: the
// local database it applies changes into, the cluster/schema it
// belongs to, and the Worker tuning knobs.
type Config struct {
	LocalConnInfo string
	ClusterName   string
	SchemaName    string
	NodeID        int32

	LinesPerProvider int
	DefaultConnRetry time.Duration

	MetricsListenAddr string
}

// Bind registers flags, mirroring the teacher's server.Config.Bind.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.LocalConnInfo, "localConnInfo", "",
		"connection string for the local, replicated database")
	flags.StringVar(&c.ClusterName, "clusterName", "",
		"the replication cluster name, used to build NOTIFY channel names")
	flags.StringVar(&c.SchemaName, "schemaName", "_slon",
		"the schema holding the replication catalog tables")
	flags.Int32Var(&c.NodeID, "nodeId", 0,
		"this process's node id within the cluster")

	flags.IntVar(&c.LinesPerProvider, "linesPerProvider", 4*100,
		"how many Line buffers a new provider context contributes to the shared pool")
	flags.DurationVar(&c.DefaultConnRetry, "defaultConnRetry", 10*time.Second,
		"default retry interval for providers with no configured pa_connretry")

	flags.StringVar(&c.MetricsListenAddr, "metricsListenAddr", ":9979",
		"address to serve Prometheus metrics on")
}

// Preflight validates the bound flags, mirroring the teacher's
// server.Config.Preflight.
func (c *Config) Preflight() error {
	if c.LocalConnInfo == "" {
		return errors.New("localConnInfo unset")
	}
	if c.ClusterName == "" {
		return errors.New("clusterName unset")
	}
	if c.SchemaName == "" {
		return errors.New("schemaName unset")
	}
	if c.NodeID <= 0 {
		return errors.New("nodeId must be positive")
	}
	if c.LinesPerProvider <= 0 {
		return errors.New("linesPerProvider must be positive")
	}
	if c.DefaultConnRetry <= 0 {
		return errors.New("defaultConnRetry must be positive")
	}
	return nil
}

// WorkerConfig projects the subset of Config that internal/worker
// consumes.
func (c *Config) WorkerConfig() worker.Config {
	return worker.Config{
		LinesPerProvider: c.LinesPerProvider,
		DefaultConnRetry: c.DefaultConnRetry,
	}
}
