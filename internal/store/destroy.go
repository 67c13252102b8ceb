// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/internal/schema"
)

// DestroyResource marks 'rid' dead and queues it for teardown. IsAlive
// returns false from now on and Write refuses it, but reads keep working
// until the next GarbageCollect. Teardown destroys every resource 'rid'
// owns, fires Destroy events, and removes 'rid' from its parent.
func (s *Store) DestroyResource(rid core.RID) error {
	st := s.live(rid)
	if st == nil || !st.markedToDestroy.CompareAndSwap(false, true) {
		return fmt.Errorf("destroy %s: %w", rid, core.ErrNoSuchResource.Error())
	}
	s.gc.retire(gcJob{destroy: st, rid: rid})
	log.V(2).Infof("queued %s for destruction", rid)
	return nil
}

// teardown destroys 'rid' and what it owns, and returns the final snapshots
// for the caller to reclaim once no pin needs them.
func (s *Store) teardown(st *storage, rid core.RID) []gcJob {
	seen := make(map[core.RID]bool)
	return s.teardownTree(st, rid, false, seen)
}

func (s *Store) teardownTree(st *storage, rid core.RID, parentDying bool, seen map[core.RID]bool) (retired []gcJob) {
	if seen[rid] || !st.active.Load() || st.id() != rid {
		return nil
	}
	seen[rid] = true
	st.markedToDestroy.Store(true)

	// Unpublish first so nobody resolves through a half destroyed resource.
	d := st.data.Swap(nil)
	if d != nil {
		for _, child := range d.children() {
			cs := s.live(child)
			if cs == nil {
				continue
			}
			// Only children that still point back at us are ours.
			if parent, _ := cs.parentRID(); parent != rid {
				continue
			}
			retired = append(retired, s.teardownTree(cs, child, true, seen)...)
		}
	}

	typ := st.typ.Load()
	ev := Event{Type: EventDestroy, RID: rid, TypeID: typ.ID()}
	if d != nil {
		ev.Old = s.view(st, rid, d, true)
	}
	s.events.fire(ev)

	if !parentDying {
		s.detach(st, rid)
	}
	s.index.forget(rid, typ.ID())

	// A first commit that swapped in after us would be dropped by reset.
	if late := st.data.Swap(nil); late != nil {
		retired = append(retired, s.finalJob(late))
	}
	st.reset()
	mLiveResources.Dec()

	if d != nil {
		retired = append(retired, s.finalJob(d))
	}
	log.V(2).Infof("tore down %s", rid)
	return retired
}

// finalJob makes the reclaim job for the last snapshot of a resource, which
// takes the resource's buffers with it.
func (s *Store) finalJob(d *snapshot) gcJob {
	j := gcJob{data: d, streams: d.streams()}
	s.gc.stamp(&j)
	return j
}

// detach removes 'rid' from the field of its parent that holds it.
func (s *Store) detach(st *storage, rid core.RID) {
	parent, field := st.parentRID()
	if !parent.IsValid() || !s.IsAlive(parent) {
		return
	}

	var err error
	ok, _ := s.cfg.CommitRetry.Do(context.Background(), func(int) bool {
		var w *Object
		if w, err = s.Write(parent); err != nil {
			// Parent went away too; nothing to detach from.
			err = nil
			return true
		}
		if !w.release(field, rid) {
			w.Discard()
			return true
		}
		err = w.Commit()
		return !core.IsRetriableError(err)
	})
	if !ok || err != nil {
		log.Warningf("failed to detach %s from %s field %d: %v", rid, parent, field, err)
	}
}

// release drops 'child' from field 'i' if this level holds it. It returns
// false if there was nothing to drop.
func (o *Object) release(i int, child core.RID) bool {
	if i < 0 || i >= o.typ.NumFields() || !o.data.set[i] {
		return false
	}
	switch o.typ.Field(i).Kind {
	case schema.FieldSubObject:
		if o.data.values[i].(core.RID) == child {
			o.SetSubObject(i, core.NilRID)
			return true
		}
	case schema.FieldSubObjectSet:
		if _, ok := o.data.values[i].(*subObjectSet).subObjects[child]; ok {
			o.RemoveFromSubObjectSet(i, child)
			return true
		}
	}
	return false
}
