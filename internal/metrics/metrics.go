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

// Package metrics collects the Prometheus vectors emitted by the
// worker, helper, and copyset packages. Grounded on the teacher's
// internal/staging/stage/metrics.go: promauto-registered vectors keyed
// by a small label set, with shared bucket/label helpers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LatencyBuckets are the histogram buckets shared by every duration
// metric in this package, mirroring metrics.LatencyBuckets in the
// teacher.
var LatencyBuckets = []float64{
	.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NodeLabels parameterizes per-origin-node metrics.
var NodeLabels = []string{"origin"}

var (
	// QueueDepth reports the current length of a node's message queue.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "slon_queue_depth",
		Help: "the number of messages currently queued for a node",
	}, NodeLabels)

	// HelperBusy reports the number of Helpers currently in BUSY state
	// for a node's workgroup.
	HelperBusy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "slon_helper_busy",
		Help: "the number of helpers currently busy for a node",
	}, NodeLabels)

	// SyncApplyDurations records the time spent in the SYNC apply loop.
	SyncApplyDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slon_sync_apply_duration_seconds",
		Help:    "the length of time it took to apply one SYNC event",
		Buckets: LatencyBuckets,
	}, NodeLabels)

	// SyncApplyErrors counts SYNC apply attempts that aborted.
	SyncApplyErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slon_sync_apply_errors_total",
		Help: "the number of times a SYNC apply was aborted and retried",
	}, NodeLabels)

	// SyncRowsApplied counts ACTION lines successfully applied.
	SyncRowsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slon_sync_rows_applied_total",
		Help: "the number of log rows applied to the local database",
	}, NodeLabels)

	// CopySetDurations records the time spent in the initial bulk copy.
	CopySetDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slon_copy_set_duration_seconds",
		Help:    "the length of time it took to perform an initial set copy",
		Buckets: LatencyBuckets,
	}, NodeLabels)

	// CopySetErrors counts failed copy_set attempts.
	CopySetErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slon_copy_set_errors_total",
		Help: "the number of times copy_set failed and was retried",
	}, NodeLabels)
)
