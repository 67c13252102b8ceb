// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package load

import (
	"fmt"
	"sync"
	"time"

	"github.com/beorn7/perks/quantile"
)

var quantiles = []float64{0.1, 0.5, 0.9, 0.99, 0.9999}

// opStats records the count, byte volume and latency distribution of one
// kind of operation.
//
// Does its own locking.
type opStats struct {
	start time.Time

	lock  sync.Mutex // Protect below.
	count int64
	bytes int64
	lat   *quantile.Stream
}

func newOpStats() *opStats {
	objectives := map[float64]float64{0.1: 0.05, 0.5: 0.05, 0.9: 0.01, 0.99: 0.001, 0.9999: 0.000001}
	return &opStats{start: time.Now(), lat: quantile.NewTargeted(objectives)}
}

func (s *opStats) update(n int64, d time.Duration) {
	s.lock.Lock()
	s.count++
	s.bytes += n
	s.lat.Insert(float64(d) / 1e9)
	s.lock.Unlock()
}

// Count returns how many operations were recorded.
func (s *opStats) Count() int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.count
}

// Quantile returns the latency at quantile 'q'.
func (s *opStats) Quantile(q float64) time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return time.Duration(s.lat.Query(q) * 1e9)
}

func (s *opStats) String() string {
	s.lock.Lock()
	defer s.lock.Unlock()

	elapsed := time.Since(s.start).Seconds()
	str := fmt.Sprintf("ops: %d (%.1f/sec)\n", s.count, float64(s.count)/elapsed)
	if s.bytes > 0 {
		str += fmt.Sprintf("stream bytes: %.3f MB\n", float64(s.bytes)/MB)
	}
	str += "latency distribution:\n"
	for _, q := range quantiles {
		str += fmt.Sprintf("%g=%.3f ms\n", q*100, s.lat.Query(q)*1000)
	}
	return str
}
