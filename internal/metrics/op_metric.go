// Copyright (c) 2015 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

// Package metrics has helpers for exporting per-operation counters and
// latencies to prometheus.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// OpMetric tracks counts and latencies for store operations such as writes,
// commits and garbage collection pumps.
//
// OpMetric creates three metric sets:
//   - A CounterVec with the given name, label "result", and any additional
//     labels. Start increments it with "result"="all"; Failed and Conflict on
//     the op increment "result"="failed" and "conflict".
//   - A SummaryVec with the given name + "_latency". Latency is only recorded
//     for ops that didn't fail.
//   - A GaugeVec with the given name + "_pending" counting ops in flight.
//
// Suggested usage:
//
//	var mOps = metrics.NewOpMetric("resgraph_ops", "op")
//
//	func (s *Store) doSomething() error {
//		op := mOps.Start("something")
//		defer op.End()
//		...
//		if err != nil {
//			op.Failed()
//		}
//		return err
//	}
type OpMetric struct {
	name      string
	counters  *prometheus.CounterVec
	latencies *prometheus.SummaryVec
	pending   *prometheus.GaugeVec
}

// NewOpMetric returns a new op metric. Like all promauto collectors it must
// only be created once per name, typically in a package level var.
func NewOpMetric(name string, labels ...string) *OpMetric {
	labelsWithResult := append([]string{"result"}, labels...)
	return &OpMetric{
		name:      name,
		counters:  promauto.NewCounterVec(prometheus.CounterOpts{Name: name}, labelsWithResult),
		latencies: promauto.NewSummaryVec(prometheus.SummaryOpts{Name: name + "_latency"}, labels),
		pending:   promauto.NewGaugeVec(prometheus.GaugeOpts{Name: name + "_pending"}, labels),
	}
}

// Start marks that a new operation has started and begins measuring the latency.
func (m *OpMetric) Start(values ...string) *Op {
	op := &Op{opm: m, values: values}
	op.Result("all") // this resets start, so set it below
	op.start = time.Now().UnixNano()
	op.opm.pending.WithLabelValues(values...).Inc()
	return op
}

// Count returns how many ops ended with 'result'.
func (m *OpMetric) Count(result string, values ...string) uint64 {
	valuesWithResult := append([]string{result}, values...)
	var value dto.Metric
	if m.counters.WithLabelValues(valuesWithResult...).Write(&value) != nil {
		return 0
	}
	return uint64(value.GetCounter().GetValue())
}

// Pending returns the number of ops that have started but not ended.
func (m *OpMetric) Pending(values ...string) int64 {
	var value dto.Metric
	if m.pending.WithLabelValues(values...).Write(&value) != nil {
		return 0
	}
	return int64(value.GetGauge().GetValue())
}

// String returns a nice string with latency information.
func (m *OpMetric) String(values ...string) string {
	out := SummaryString(m.latencies.WithLabelValues(values...))
	out += fmt.Sprintf(" / %d failed / %d conflicts / %d pending",
		m.Count("failed", values...), m.Count("conflict", values...), m.Pending(values...))
	return out
}

// Op measures one operation.
type Op struct {
	start  int64
	opm    *OpMetric
	values []string
}

// Failed records that the op returned an error.
func (op *Op) Failed() {
	op.Result("failed")
}

// Conflict records that the op lost a race with a concurrent writer.
func (op *Op) Conflict() {
	op.Result("conflict")
}

// Result records an arbitrary result.
func (op *Op) Result(result string) {
	op.start = 0 // zero this so that End won't try to record latency
	valuesWithResult := append([]string{result}, op.values...)
	op.opm.counters.WithLabelValues(valuesWithResult...).Inc()
}

// End records the elapsed time since the op was started.
func (op *Op) End() {
	if op.start != 0 {
		d := time.Duration(time.Now().UnixNano() - op.start)
		op.opm.latencies.WithLabelValues(op.values...).Observe(d.Seconds())
	}
	op.opm.pending.WithLabelValues(op.values...).Dec()
}

// SummaryString formats the sample count and quantiles of a summary.
func SummaryString(obs prometheus.Observer) string {
	sum, ok := obs.(prometheus.Summary)
	if !ok {
		return ""
	}
	var value dto.Metric
	if sum.Write(&value) != nil || value.Summary == nil {
		return ""
	}
	out := fmt.Sprintf("Total count=%d;", value.Summary.GetSampleCount())
	for _, q := range value.Summary.Quantile {
		out += fmt.Sprintf(" %gth=%.3f;", q.GetQuantile()*100, q.GetValue())
	}
	return out[:len(out)-1]
}
