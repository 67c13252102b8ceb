// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"fmt"
	"runtime"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
)

// Commit publishes the transaction's snapshot. It succeeds only if nobody
// else committed the resource since Write; otherwise the private snapshot is
// destroyed and ErrCommitConflict is returned. On success the resource and
// all of its ancestors get a new version, ownership changes are applied to
// the affected children, and subscribers are notified.
//
// After Commit, successful or not, the object is no longer writable.
func (o *Object) Commit() error {
	if !o.write {
		return fmt.Errorf("commit %s: %w", o.rid, core.ErrReadOnly.Error())
	}
	if o.state != stateBuilding {
		return fmt.Errorf("commit %s: %w", o.rid, core.ErrTxnFinished.Error())
	}
	runtime.SetFinalizer(o, nil)

	op := mOps.Start("commit")
	defer op.End()
	s := o.store

	// Once DestroyResource has marked the resource, its current snapshot
	// belongs to the pending teardown.
	if o.st.markedToDestroy.Load() {
		op.Failed()
		mCommitDead.Inc()
		o.discard()
		return fmt.Errorf("commit %s: %w", o.rid, core.ErrNoSuchResource.Error())
	}

	// A first commit races other first commits just like any other commit,
	// so it swaps from nil instead of storing.
	if !o.st.data.CompareAndSwap(o.basis, o.data) {
		if o.st.id() != o.rid || o.st.markedToDestroy.Load() {
			op.Failed()
			mCommitDead.Inc()
			o.discard()
			return fmt.Errorf("commit %s: %w", o.rid, core.ErrNoSuchResource.Error())
		}
		op.Conflict()
		mCommitConflict.Inc()
		log.Warningf("commit of %s lost a race with another writer", o.rid)
		o.discard()
		return fmt.Errorf("commit %s: %w", o.rid, core.ErrCommitConflict.Error())
	}

	// The resource was marked or torn down between the check above and the
	// swap. Put the basis back so teardown finds the last published
	// snapshot. If teardown already took ours, it owns it now, and the basis
	// is retired like any superseded snapshot.
	if !o.st.active.Load() || o.st.id() != o.rid || o.st.markedToDestroy.Load() {
		op.Failed()
		mCommitDead.Inc()
		if o.st.data.CompareAndSwap(o.data, o.basis) {
			o.discard()
		} else {
			o.state = stateDiscarded
			if o.basis != nil {
				s.gc.retire(gcJob{data: o.basis})
			}
		}
		return fmt.Errorf("commit %s: %w", o.rid, core.ErrNoSuchResource.Error())
	}
	o.state = stateCommitted

	for child, field := range o.unlinks {
		if cs := s.live(child); cs != nil {
			cs.clearParent(o.rid, field)
		}
	}
	for child, field := range o.links {
		if cs := s.live(child); cs != nil {
			cs.setParent(o.rid, field)
		} else {
			log.Warningf("%s: child %s in field %d is gone", o.rid, child, field)
		}
	}
	s.bumpVersion(o.st)

	ev := Event{RID: o.rid, TypeID: o.typ.ID(), New: s.view(o.st, o.rid, o.data, true)}
	if o.basis == nil {
		ev.Type = EventInsert
		mCommitInsert.Inc()
	} else {
		ev.Type = EventUpdate
		ev.Old = s.view(o.st, o.rid, o.basis, true)
		mCommitUpdate.Inc()
	}
	s.events.fire(ev)

	if o.basis != nil {
		s.gc.retire(gcJob{data: o.basis, streams: o.dropStreams})
	}
	log.V(2).Infof("committed %s version %d", o.rid, o.st.version.Load())
	return nil
}

// Discard abandons the transaction and destroys its private snapshot.
// Discarding a finished transaction does nothing.
func (o *Object) Discard() {
	if !o.write || o.state != stateBuilding {
		return
	}
	runtime.SetFinalizer(o, nil)
	o.discard()
}

func (o *Object) discard() {
	o.state = stateDiscarded
	o.data.destroyValues()
	for _, ref := range o.newStreams {
		if err := o.store.streams.Remove(ref); err != nil {
			log.Warningf("failed to remove stream %s of discarded transaction on %s: %s", ref, o.rid, err)
		}
	}
}

// finalizeWrite cleans up transactions that were dropped without Commit or
// Discard.
func finalizeWrite(o *Object) {
	if o.state == stateBuilding {
		log.Warningf("transaction on %s was dropped without Commit or Discard", o.rid)
		o.discard()
	}
}
