// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"sync"
	"sync/atomic"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
)

// page is a fixed block of storage slots. Pages are allocated on first touch
// and never moved or freed, so a *storage stays valid for the life of the
// store.
type page [core.PageSize]storage

// pageTable hands out slots from a monotonic counter. Lookups are lock-free;
// only allocating a new page takes the lock.
type pageTable struct {
	counter atomic.Uint64
	pages   []atomic.Pointer[page]

	// Serializes page allocation.
	lock sync.Mutex
}

func newPageTable(maxPages int) *pageTable {
	return &pageTable{pages: make([]atomic.Pointer[page], maxPages)}
}

// alloc reserves the next slot. The slot is zeroed; the caller initializes it.
func (t *pageTable) alloc() (core.RID, *storage, error) {
	rid := core.RIDFromCounter(t.counter.Add(1))
	if int(rid.Page()) >= len(t.pages) {
		log.Errorf("handle table full at %s", rid)
		return core.NilRID, nil, core.ErrTooManyResources.Error()
	}

	p := t.pages[rid.Page()].Load()
	if p == nil {
		t.lock.Lock()
		if p = t.pages[rid.Page()].Load(); p == nil {
			p = new(page)
			t.pages[rid.Page()].Store(p)
			mPages.Inc()
			log.V(1).Infof("allocated handle page %d", rid.Page())
		}
		t.lock.Unlock()
	}
	return rid, &p[rid.Offset()], nil
}

// slot returns the storage slot for 'rid', or nil if its page was never
// allocated. The slot may be dead; see Store.live.
func (t *pageTable) slot(rid core.RID) *storage {
	if !rid.IsValid() || int(rid.Page()) >= len(t.pages) {
		return nil
	}
	p := t.pages[rid.Page()].Load()
	if p == nil {
		return nil
	}
	return &p[rid.Offset()]
}

// allocated returns the number of slots handed out so far.
func (t *pageTable) allocated() uint64 {
	return t.counter.Load()
}
