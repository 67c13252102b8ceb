// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"math"
	"sync"
	"sync/atomic"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/internal/stream"
)

// gcJob is either a retired snapshot to reclaim, or a resource to tear down.
type gcJob struct {
	// Position in retirement order. Snapshots retired after a pin was
	// taken have epoch >= the pin's.
	epoch uint64

	data    *snapshot
	streams []stream.Ref // buffers to remove along with data

	destroy *storage
	rid     core.RID
}

// collector holds the gc queue and the live reader pins.
type collector struct {
	lock  sync.Mutex
	queue []gcJob
	epoch uint64
	pins  map[uint64]int // epoch -> number of pins taken at it
}

func (c *collector) init() {
	c.epoch = 1
	c.pins = make(map[uint64]int)
}

// stamp gives 'j' the next epoch.
func (c *collector) stamp(j *gcJob) {
	c.lock.Lock()
	j.epoch = c.epoch
	c.epoch++
	c.lock.Unlock()
}

// retire queues 'j' for the next GarbageCollect.
func (c *collector) retire(j gcJob) {
	c.lock.Lock()
	j.epoch = c.epoch
	c.epoch++
	c.queue = append(c.queue, j)
	mGCQueue.Set(float64(len(c.queue)))
	c.lock.Unlock()
}

// drain takes everything queued so far.
func (c *collector) drain() []gcJob {
	c.lock.Lock()
	defer c.lock.Unlock()
	q := c.queue
	c.queue = nil
	mGCQueue.Set(0)
	return q
}

// requeue puts back jobs that can't be reclaimed yet, ahead of anything
// queued in the meantime.
func (c *collector) requeue(jobs []gcJob) {
	if len(jobs) == 0 {
		return
	}
	c.lock.Lock()
	c.queue = append(jobs, c.queue...)
	mGCQueue.Set(float64(len(c.queue)))
	c.lock.Unlock()
}

// reclaimable returns true if no live pin could be looking at what 'j'
// retired.
func (c *collector) reclaimable(j gcJob) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	oldest := uint64(math.MaxUint64)
	for e := range c.pins {
		if e < oldest {
			oldest = e
		}
	}
	return j.epoch < oldest
}

func (c *collector) pending() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.queue)
}

// Pin keeps snapshots alive for a reader. Every snapshot that is current at
// or after the time Pin is taken stays intact until Release, even across
// GarbageCollect calls.
type Pin struct {
	c        *collector
	epoch    uint64
	released atomic.Bool
}

// Pin takes a reader pin. Take it before Read and release it once done with
// every view read under it.
func (s *Store) Pin() *Pin {
	c := &s.gc
	c.lock.Lock()
	p := &Pin{c: c, epoch: c.epoch}
	c.pins[p.epoch]++
	c.lock.Unlock()
	return p
}

// Release drops the pin. Releasing twice is a no-op.
func (p *Pin) Release() {
	if p.released.Swap(true) {
		return
	}
	c := p.c
	c.lock.Lock()
	if c.pins[p.epoch]--; c.pins[p.epoch] == 0 {
		delete(c.pins, p.epoch)
	}
	c.lock.Unlock()
}

// GarbageCollect runs the queued jobs: resources passed to DestroyResource
// are torn down, and retired snapshots nobody can be reading are reclaimed.
// Snapshots protected by a Pin stay queued. It returns the number of jobs
// processed.
//
// Nothing is reclaimed unless GarbageCollect is called.
func (s *Store) GarbageCollect() int {
	op := mOps.Start("gc")
	defer op.End()

	jobs := s.gc.drain()
	var deferred []gcJob
	n := 0
	for len(jobs) > 0 {
		j := jobs[0]
		jobs = jobs[1:]

		if j.destroy != nil {
			// Teardown only unpublishes, so it is safe under pins. The
			// snapshots it retires are handled in this same pass.
			jobs = append(jobs, s.teardown(j.destroy, j.rid)...)
			mGCDestroy.Inc()
			n++
			continue
		}
		if !s.gc.reclaimable(j) {
			deferred = append(deferred, j)
			mGCDeferred.Inc()
			continue
		}
		s.reclaim(j)
		n++
	}
	s.gc.requeue(deferred)

	if n > 0 || len(deferred) > 0 {
		log.V(1).Infof("gc: processed %d jobs, %d deferred by pins", n, len(deferred))
	}
	return n
}

// reclaim releases a retired snapshot and the buffers that went with it.
func (s *Store) reclaim(j gcJob) {
	j.data.destroyValues()
	for _, ref := range j.streams {
		if err := s.streams.Remove(ref); err != nil && !core.ErrNoSuchStream.Is(err) {
			log.Errorf("gc: failed to remove stream %s: %s", ref, err)
		}
	}
	mGCSnapshot.Inc()
}

// PendingGC returns the number of jobs waiting for GarbageCollect.
func (s *Store) PendingGC() int {
	return s.gc.pending()
}
