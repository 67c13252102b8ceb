// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"testing"

	"github.com/google/uuid"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
)

func TestEvents(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	var got []Event
	id, err := s.AddResourceTypeEvent(thingID, EventAll, func(ev Event) {
		got = append(got, ev)
	})
	if err != nil {
		t.Fatalf("AddResourceTypeEvent failed: %v", err)
	}
	var updates int
	if _, err := s.AddResourceTypeEvent(thingID, EventUpdate, func(Event) { updates++ }); err != nil {
		t.Fatalf("AddResourceTypeEvent failed: %v", err)
	}

	rid := newThing(t, s, 1, "one")
	commit(t, s, rid, func(w *Object) { w.SetValue(fInt, int64(2)) })
	s.DestroyResource(rid)
	s.GarbageCollect()

	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if ev := got[0]; ev.Type != EventInsert || ev.RID != rid || ev.TypeID != thingID || ev.Old != nil || ev.New == nil {
		t.Errorf("bad insert event %+v", ev)
	}
	ev := got[1]
	if ev.Type != EventUpdate {
		t.Fatalf("expected update, got %s", ev.Type)
	}
	oldV, _ := Get[int64](ev.Old, fInt)
	newV, _ := Get[int64](ev.New, fInt)
	if oldV != 1 || newV != 2 {
		t.Errorf("update event should carry 1 -> 2, got %d -> %d", oldV, newV)
	}
	if ev := got[2]; ev.Type != EventDestroy || ev.Old == nil || ev.New != nil {
		t.Errorf("bad destroy event %+v", ev)
	}
	if updates != 1 {
		t.Errorf("update-only subscriber called %d times", updates)
	}

	if !s.RemoveResourceTypeEvent(id) || s.RemoveResourceTypeEvent(id) {
		t.Errorf("RemoveResourceTypeEvent should succeed exactly once")
	}
	newThing(t, s, 3, "three")
	if len(got) != 3 {
		t.Errorf("removed subscriber still called")
	}
}

func TestEventCanUseStore(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	var seen int64
	s.AddResourceTypeEvent(thingID, EventInsert|EventUpdate, func(ev Event) {
		if o, ok := s.Read(ev.RID); ok {
			seen, _ = Get[int64](o, fInt)
		}
	})
	newThing(t, s, 42, "x")
	if seen != 42 {
		t.Errorf("subscriber should see the committed snapshot, got %d", seen)
	}
}

func TestAddResourceTypeEventErrors(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if _, err := s.AddResourceTypeEvent(core.TypeIDFromName("nope"), EventAll, func(Event) {}); !core.ErrUnknownType.Is(err) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
	if _, err := s.AddResourceTypeEvent(thingID, 0, func(Event) {}); !core.ErrInvalidArgument.Is(err) {
		t.Errorf("expected ErrInvalidArgument for empty mask, got %v", err)
	}
	if EventAll.String() != "insert|update|destroy" || EventType(0).String() != "none" {
		t.Errorf("bad event names %q", EventAll)
	}
}

func TestLookups(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	id := uuid.New()
	rid, err := s.CreateResource(thingID, id)
	if err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}
	if again, _ := s.CreateResource(thingID, id); again != rid {
		t.Errorf("create with the same uuid should return %s, got %s", rid, again)
	}
	if got, ok := s.GetByUUID(id); !ok || got != rid {
		t.Errorf("GetByUUID = %s %v", got, ok)
	}
	if got, ok := s.UUIDOf(rid); !ok || got != id {
		t.Errorf("UUIDOf = %s %v", got, ok)
	}

	other := newThing(t, s, 1, "other")
	if err := s.SetUUID(other, id); !core.ErrInvalidArgument.Is(err) {
		t.Errorf("stealing a uuid should fail, got %v", err)
	}

	if err := s.SetPath(rid, "scenes/main.scene"); err != nil {
		t.Fatalf("SetPath failed: %v", err)
	}
	if err := s.SetPath(other, "scenes/main.scene"); !core.ErrInvalidArgument.Is(err) {
		t.Errorf("stealing a path should fail, got %v", err)
	}
	if err := s.SetPath(rid, "scenes/renamed.scene"); err != nil {
		t.Fatalf("SetPath failed: %v", err)
	}
	if _, ok := s.GetByPath("scenes/main.scene"); ok {
		t.Errorf("old path still bound after rename")
	}
	if got, ok := s.GetByPath("scenes/renamed.scene"); !ok || got != rid {
		t.Errorf("GetByPath = %s %v", got, ok)
	}
	if p, _ := s.PathOf(rid); p != "scenes/renamed.scene" {
		t.Errorf("PathOf = %q", p)
	}
	if !s.RemovePath("scenes/renamed.scene") || s.RemovePath("scenes/renamed.scene") {
		t.Errorf("RemovePath should succeed exactly once")
	}

	s.SetPath(rid, "a/b")
	s.DestroyResource(rid)
	if _, ok := s.GetByUUID(id); ok {
		t.Errorf("destroyed resource found by uuid")
	}
	s.GarbageCollect()
	if _, ok := s.UUIDOf(rid); ok {
		t.Errorf("uuid binding survived teardown")
	}
	if _, ok := s.PathOf(rid); ok {
		t.Errorf("path binding survived teardown")
	}
	if fresh, _ := s.CreateResource(thingID, id); fresh == rid {
		t.Errorf("uuid of a torn down resource should get a new handle")
	}
}

func TestUUIDOfDyingResourceIsRebound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	id := uuid.New()
	old, err := s.CreateResource(thingID, id)
	if err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}
	if err := s.DestroyResource(old); err != nil {
		t.Fatalf("DestroyResource failed: %v", err)
	}

	// Not collected yet, but the old handle is no longer usable.
	fresh, err := s.CreateResource(thingID, id)
	if err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}
	if fresh == old {
		t.Fatalf("create returned dying handle %s", old)
	}
	if !s.IsAlive(fresh) {
		t.Errorf("new handle %s is not alive", fresh)
	}
	if w, err := s.Write(fresh); err != nil {
		t.Errorf("Write(%s) failed: %v", fresh, err)
	} else {
		w.Discard()
	}
	if got, ok := s.GetByUUID(id); !ok || got != fresh {
		t.Errorf("GetByUUID = %s %v, expected %s", got, ok, fresh)
	}
	if _, ok := s.UUIDOf(old); ok {
		t.Errorf("dying resource kept its uuid")
	}

	// Teardown of the old resource must not unbind the new one.
	s.GarbageCollect()
	if got, ok := s.GetByUUID(id); !ok || got != fresh {
		t.Errorf("after gc GetByUUID = %s %v, expected %s", got, ok, fresh)
	}
	if again, _ := s.CreateResource(thingID, id); again != fresh {
		t.Errorf("create with a live binding returned %s, expected %s", again, fresh)
	}

	// A dying holder doesn't block SetUUID either.
	other := newThing(t, s, 1, "other")
	s.DestroyResource(fresh)
	if err := s.SetUUID(other, id); err != nil {
		t.Errorf("SetUUID over a dying holder failed: %v", err)
	}
	s.GarbageCollect()
	if got, ok := s.GetByUUID(id); !ok || got != other {
		t.Errorf("GetByUUID = %s %v, expected %s", got, ok, other)
	}
}

func TestResourcesByType(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	a, b := newThing(t, s, 1, "a"), newThing(t, s, 2, "b")
	if got := s.ResourcesByType(thingID); len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("ResourcesByType = %v", got)
	}
	s.DestroyResource(a)
	s.GarbageCollect()
	if got := s.ResourcesByType(thingID); len(got) != 1 || got[0] != b {
		t.Errorf("ResourcesByType after destroy = %v", got)
	}
	if s.Allocated() != 2 {
		t.Errorf("Allocated = %d", s.Allocated())
	}
}
