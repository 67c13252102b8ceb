// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/westerndigitalcorporation/resgraph/internal/metrics"
)

var (
	mOps = metrics.NewOpMetric("resgraph_ops", "op")

	mCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "resgraph",
		Name:      "commits",
		Help:      "commits by result",
	}, []string{"result", "kind"})
	mCommitInsert   = mCommits.WithLabelValues("ok", "insert")
	mCommitUpdate   = mCommits.WithLabelValues("ok", "update")
	mCommitConflict = mCommits.WithLabelValues("conflict", "")
	mCommitDead     = mCommits.WithLabelValues("destroyed", "")

	mLiveResources = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "resgraph",
		Name:      "live_resources",
		Help:      "resources allocated and not yet destroyed",
	})

	mPages = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "resgraph",
		Name:      "pages",
		Help:      "handle table pages allocated",
	})

	mSnapshotBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "resgraph",
		Name:      "snapshot_bytes",
		Help:      "packed size of snapshots not yet reclaimed",
	})

	mGCJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "resgraph",
		Name:      "gc_jobs",
		Help:      "garbage collector jobs processed, by kind",
	}, []string{"kind"})
	mGCSnapshot = mGCJobs.WithLabelValues("snapshot")
	mGCDestroy  = mGCJobs.WithLabelValues("destroy")
	mGCDeferred = mGCJobs.WithLabelValues("deferred")

	mGCQueue = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "resgraph",
		Name:      "gc_queue",
		Help:      "jobs waiting for the next GarbageCollect",
	})
)

// OpSummary returns count, latency quantiles, and failures of store
// operation 'op' ("write", "commit", or "gc").
func OpSummary(op string) string {
	return mOps.String(op)
}
