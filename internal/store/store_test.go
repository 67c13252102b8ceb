// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/internal/schema"
	"github.com/westerndigitalcorporation/resgraph/pkg/retry"
)

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.StreamBackend = "tape"
	if _, err := New(nil, cfg); !core.ErrInvalidArgument.Is(err) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCreateUnknownType(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	if _, err := s.CreateResource(core.TypeIDFromName("nope"), uuid.Nil); !core.ErrUnknownType.Is(err) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}

func TestReadBeforeFirstCommit(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	rid, err := s.CreateResource(thingID, uuid.Nil)
	if err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}
	if !rid.IsValid() || rid.Page() != 0 || rid.Offset() != 1 {
		t.Errorf("first handle should be 0:1, got %s", rid)
	}
	if _, ok := s.Read(rid); ok {
		t.Errorf("resource without a commit should not be readable")
	}
	if !s.IsAlive(rid) {
		t.Errorf("resource should be alive before its first commit")
	}
	if _, ok := s.Read(core.RIDFromParts(3, 7)); ok {
		t.Errorf("read of a never allocated handle should find nothing")
	}
}

// answerType is an int64 value type whose unset fields read as 42.
type answerType struct {
	schema.ValueType
}

func (answerType) Construct() interface{} {
	return int64(42)
}

func TestUnsetValueReadsConstructed(t *testing.T) {
	table := schema.NewTypeTable()
	if err := table.Register(answerType{schema.ValueOf[int64]("answer")}); err != nil {
		t.Fatalf("failed to register value type: %v", err)
	}
	reg := schema.NewRegistry(table)
	typ, err := schema.NewBuilder("question", core.TypeIDFromName("question")).
		Value("Answer", "answer").
		Value("Plain", "int64").
		Build(reg)
	if err != nil {
		t.Fatalf("failed to create resource type: %v", err)
	}
	s, err := New(reg, testConfig(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	rid, err := s.CreateResource(typ.ID(), uuid.Nil)
	if err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}
	commit(t, s, rid, func(*Object) {})

	o := mustRead(t, s, rid)
	if v, ok := Get[int64](o, 0); ok || v != 42 {
		t.Errorf("unset Answer = %d %v, expected 42 false", v, ok)
	}
	if v, ok := Get[int64](o, 1); ok || v != 0 {
		t.Errorf("unset Plain = %d %v, expected 0 false", v, ok)
	}

	commit(t, s, rid, func(w *Object) { w.SetValue(0, int64(7)) })
	if v, ok := Get[int64](mustRead(t, s, rid), 0); !ok || v != 7 {
		t.Errorf("Answer = %d %v, expected 7 true", v, ok)
	}
}

func TestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	child := newThing(t, s, 1, "child")
	rid := newThing(t, s, 300, "blahblah")
	commit(t, s, rid, func(w *Object) {
		w.SetValue(fTracked, tracked{tag: 9})
		w.SetSubObject(fChild, child)
	})

	o := mustRead(t, s, rid)
	if v, _ := Get[int64](o, fInt); v != 300 {
		t.Errorf("IntValue = %d", v)
	}
	if v, _ := Get[string](o, fString); v != "blahblah" {
		t.Errorf("StringValue = %q", v)
	}
	if v, _ := Get[tracked](o, fTracked); v.tag != 9 {
		t.Errorf("Tracked = %+v", v)
	}
	if got := o.SubObject(fChild); got != child {
		t.Errorf("Child = %s, expected %s", got, child)
	}
	if parent, field := s.Parent(child); parent != rid || field != fChild {
		t.Errorf("Parent(child) = %s/%d", parent, field)
	}
	if !o.HasLocal(fInt) || o.Has(fChildren) {
		t.Errorf("wrong set flags")
	}
	if typ, ok := s.TypeOf(rid); !ok || typ.ID() != thingID {
		t.Errorf("TypeOf = %v", typ)
	}
}

func TestIdempotentCommit(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	rid := newThing(t, s, 7, "seven")
	before := s.Version(rid)
	commit(t, s, rid, func(*Object) {})

	if intOf(t, s, rid) != 7 || stringOf(t, s, rid) != "seven" {
		t.Errorf("empty commit changed values")
	}
	if s.Version(rid) < before {
		t.Errorf("version went backwards: %d -> %d", before, s.Version(rid))
	}
}

func TestWriteIsPrivateUntilCommit(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	rid := newThing(t, s, 1, "one")
	w, _ := s.Write(rid)
	w.SetValue(fInt, int64(2))
	if v, _ := Get[int64](w, fInt); v != 2 {
		t.Errorf("transaction should see its own write, got %d", v)
	}
	if intOf(t, s, rid) != 1 {
		t.Errorf("uncommitted write is visible")
	}
	w.Discard()
	if intOf(t, s, rid) != 1 {
		t.Errorf("discarded write is visible")
	}
	if err := w.Commit(); !core.ErrTxnFinished.Is(err) {
		t.Errorf("expected ErrTxnFinished committing a discarded txn, got %v", err)
	}
}

func TestCommitConflict(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	rid := newThing(t, s, 1, "one")
	w1, _ := s.Write(rid)
	w2, _ := s.Write(rid)
	w1.SetValue(fInt, int64(10))
	w2.SetValue(fInt, int64(20))

	if err := w1.Commit(); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	err := w2.Commit()
	if !core.ErrCommitConflict.Is(err) || !core.IsRetriableError(err) {
		t.Fatalf("expected a retriable ErrCommitConflict, got %v", err)
	}
	if w2.Writable() {
		t.Errorf("losing transaction should be finished")
	}
	if intOf(t, s, rid) != 10 {
		t.Errorf("losing commit overwrote the winner")
	}
	if err := w2.Commit(); !core.ErrTxnFinished.Is(err) {
		t.Errorf("expected ErrTxnFinished, got %v", err)
	}
}

func TestFirstCommitConflict(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	rid, _ := s.CreateResource(thingID, uuid.Nil)
	w1, _ := s.Write(rid)
	w2, _ := s.Write(rid)
	w1.SetValue(fString, "first")
	w2.SetValue(fString, "second")
	if err := w1.Commit(); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	if err := w2.Commit(); !core.ErrCommitConflict.Is(err) {
		t.Fatalf("two bootstrap commits must not both win, got %v", err)
	}
	if stringOf(t, s, rid) != "first" {
		t.Errorf("bootstrap value was overwritten")
	}
}

func TestConflictDestroysPrivateCopy(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	rid := newThing(t, s, 1, "one")
	commit(t, s, rid, func(w *Object) { w.SetValue(fTracked, tracked{tag: 1}) })

	w1, _ := s.Write(rid)
	w2, _ := s.Write(rid)
	if err := w1.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	before := trackedDestroyed.Load()
	if err := w2.Commit(); err == nil {
		t.Fatalf("expected conflict")
	}
	if got := trackedDestroyed.Load() - before; got != 1 {
		t.Errorf("conflict should destroy the private copy once, destroyed %d", got)
	}
}

func TestContractViolations(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	rid := newThing(t, s, 1, "one")

	w, _ := s.Write(rid)
	expectViolation(t, core.ErrWrongFieldKind, func() { w.SetValue(fChildren, int64(1)) })
	expectViolation(t, core.ErrWrongValueType, func() { w.SetValue(fInt, 300) })
	expectViolation(t, core.ErrNoSuchField, func() { w.SetValue(42, int64(1)) })
	expectViolation(t, core.ErrInvalidArgument, func() { w.SetSubObject(fChild, rid) })
	expectViolation(t, core.ErrWrongFieldKind, func() { w.SubObject(fInt) })
	w.Discard()
	expectViolation(t, core.ErrTxnFinished, func() { w.SetValue(fInt, int64(2)) })

	r := mustRead(t, s, rid)
	expectViolation(t, core.ErrReadOnly, func() { r.SetValue(fInt, int64(2)) })
	if err := r.Commit(); !core.ErrReadOnly.Is(err) {
		t.Errorf("expected ErrReadOnly committing a read view, got %v", err)
	}
	expectViolation(t, core.ErrWrongValueType, func() { Get[string](r, fInt) })
}

func TestVersionPropagation(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	grandchild := newThing(t, s, 3, "grandchild")
	child := newThing(t, s, 2, "child")
	parent := newThing(t, s, 1, "parent")
	unrelated := newThing(t, s, 0, "unrelated")
	commit(t, s, child, func(w *Object) { w.AddToSubObjectSet(fChildren, grandchild) })
	commit(t, s, parent, func(w *Object) { w.SetSubObject(fChild, child) })

	pv, cv, uv := s.Version(parent), s.Version(child), s.Version(unrelated)
	commit(t, s, grandchild, func(w *Object) { w.SetValue(fInt, int64(33)) })

	if s.Version(child) <= cv {
		t.Errorf("child version didn't increase: %d -> %d", cv, s.Version(child))
	}
	if s.Version(parent) <= pv {
		t.Errorf("parent version didn't increase: %d -> %d", pv, s.Version(parent))
	}
	if s.Version(unrelated) != uv {
		t.Errorf("unrelated version changed: %d -> %d", uv, s.Version(unrelated))
	}
}

func TestReleasedChildIsNotDestroyed(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	a, b := newThing(t, s, 1, "a"), newThing(t, s, 2, "b")
	parent := newThing(t, s, 0, "parent")
	commit(t, s, parent, func(w *Object) {
		w.AddToSubObjectSet(fChildren, a)
		w.AddToSubObjectSet(fChildren, b)
	})
	commit(t, s, parent, func(w *Object) { w.RemoveFromSubObjectSet(fChildren, a) })

	if p, _ := s.Parent(a); p.IsValid() {
		t.Errorf("removed child still points at %s", p)
	}
	if p, _ := s.Parent(b); p != parent {
		t.Errorf("kept child lost its parent")
	}
	if !s.IsAlive(a) {
		t.Errorf("removed child was destroyed")
	}

	// Add and remove in one transaction never links.
	c := newThing(t, s, 3, "c")
	commit(t, s, parent, func(w *Object) {
		w.AddToSubObjectSet(fChildren, c)
		w.RemoveFromSubObjectSet(fChildren, c)
	})
	if p, _ := s.Parent(c); p.IsValid() {
		t.Errorf("child added and removed in one txn has parent %s", p)
	}

	commit(t, s, parent, func(w *Object) { w.ClearSubObjectSet(fChildren) })
	if n := mustRead(t, s, parent).SubObjectSetCount(fChildren); n != 0 {
		t.Errorf("cleared set has %d members", n)
	}
	if p, _ := s.Parent(b); p.IsValid() {
		t.Errorf("cleared child still points at %s", p)
	}
}

func TestUpdate(t *testing.T) {
	cfg := testConfig(t)
	cfg.CommitRetry = retry.Retrier{MinSleep: 10 * time.Microsecond, MaxSleep: time.Millisecond}
	s := newTestStoreWithConfig(t, cfg)
	defer s.Close()

	rid := newThing(t, s, 0, "")
	const writers, increments = 8, 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				err := s.Update(context.Background(), rid, func(w *Object) error {
					v, _ := Get[int64](w, fInt)
					w.SetValue(fInt, v+1)
					return nil
				})
				if err != nil {
					t.Errorf("Update failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := intOf(t, s, rid); got != writers*increments {
		t.Errorf("lost updates: got %d, expected %d", got, writers*increments)
	}
}

func TestUpdateErrors(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	rid := newThing(t, s, 1, "one")

	boom := errors.New("boom")
	if err := s.Update(context.Background(), rid, func(w *Object) error {
		w.SetValue(fInt, int64(2))
		return boom
	}); err != boom {
		t.Errorf("expected fn's error back, got %v", err)
	}
	if intOf(t, s, rid) != 1 {
		t.Errorf("failed Update committed")
	}

	// Every attempt conflicts; a cancelled context stops the loop.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Update(ctx, rid, func(w *Object) error {
		commit(t, s, rid, func(*Object) {})
		return nil
	})
	if !core.ErrCanceled.Is(err) {
		t.Errorf("expected ErrCanceled, got %v", err)
	}

	if err := s.Update(context.Background(), core.RIDFromParts(2, 2), func(*Object) error { return nil }); !core.ErrNoSuchResource.Is(err) {
		t.Errorf("expected ErrNoSuchResource, got %v", err)
	}
}

func TestConsistentSnapshots(t *testing.T) {
	cfg := testConfig(t)
	cfg.CommitRetry = retry.Retrier{MinSleep: 10 * time.Microsecond, MaxSleep: time.Millisecond}
	s := newTestStoreWithConfig(t, cfg)
	defer s.Close()

	rid := newThing(t, s, 0, "")
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				o, _ := s.Read(rid)
				n, _ := Get[int64](o, fInt)
				str, _ := Get[string](o, fString)
				if int64(len(str)) != n {
					t.Errorf("torn read: IntValue %d with %d byte string", n, len(str))
					return
				}
			}
		}()
	}

	for n := 1; n <= 200; n++ {
		err := s.Update(context.Background(), rid, func(w *Object) error {
			w.SetValue(fInt, int64(n))
			w.SetValue(fString, strings.Repeat("x", n))
			return nil
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestTooManyResources(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxPages = 1
	s := newTestStoreWithConfig(t, cfg)
	defer s.Close()

	// Counter value 0 is the nil handle, so one page holds PageSize-1.
	for i := 1; i < core.PageSize; i++ {
		if _, err := s.CreateResource(thingID, uuid.Nil); err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
	}
	if _, err := s.CreateResource(thingID, uuid.Nil); !core.ErrTooManyResources.Is(err) {
		t.Errorf("expected ErrTooManyResources, got %v", err)
	}
	if s.Count() != core.PageSize-1 {
		t.Errorf("Count = %d", s.Count())
	}
}

func TestClose(t *testing.T) {
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); !core.ErrClosed.Is(err) {
		t.Errorf("expected ErrClosed on second close, got %v", err)
	}
	if _, err := s.CreateResource(thingID, uuid.Nil); !core.ErrClosed.Is(err) {
		t.Errorf("expected ErrClosed creating on a closed store, got %v", err)
	}
}
