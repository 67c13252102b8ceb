// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/internal/schema"
	"github.com/westerndigitalcorporation/resgraph/pkg/testutil"
)

func TestMain(m *testing.M) {
	testutil.TestMain(m)
}

// Fields of the "thing" test type.
const (
	fInt = iota
	fString
	fChild
	fChildren
	fBlob
	fTracked
)

var thingID = core.TypeIDFromName("thing")

// tracked counts how many of its copies the store has destroyed.
type tracked struct {
	tag int
}

var trackedDestroyed atomic.Int64

func (tracked) Destroy() {
	trackedDestroyed.Add(1)
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig
	cfg.MaxPages = 4
	cfg.StreamDir = testutil.MkTempDir(t, "store")
	return cfg
}

func newTestStoreWithConfig(t *testing.T, cfg Config) *Store {
	table := schema.NewTypeTable()
	if err := table.Register(schema.ValueOf[tracked]("tracked")); err != nil {
		t.Fatalf("failed to register value type: %v", err)
	}
	reg := schema.NewRegistry(table)
	_, err := schema.NewBuilder("thing", thingID).
		Value("IntValue", "int64").
		Value("StringValue", "string").
		SubObject("Child").
		SubObjectSet("Children").
		Stream("Blob").
		Value("Tracked", "tracked").
		Build(reg)
	if err != nil {
		t.Fatalf("failed to create resource type: %v", err)
	}
	s, err := New(reg, cfg)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func newTestStore(t *testing.T) *Store {
	return newTestStoreWithConfig(t, testConfig(t))
}

// commit runs 'fn' on a transaction of 'rid' and commits it.
func commit(t *testing.T, s *Store, rid core.RID, fn func(*Object)) {
	w, err := s.Write(rid)
	if err != nil {
		t.Fatalf("Write(%s) failed: %v", rid, err)
	}
	fn(w)
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit(%s) failed: %v", rid, err)
	}
}

// newThing creates and commits a thing with the given values.
func newThing(t *testing.T, s *Store, i int64, str string) core.RID {
	rid, err := s.CreateResource(thingID, uuid.Nil)
	if err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}
	commit(t, s, rid, func(w *Object) {
		w.SetValue(fInt, i)
		w.SetValue(fString, str)
	})
	return rid
}

func mustRead(t *testing.T, s *Store, rid core.RID) *Object {
	o, ok := s.Read(rid)
	if !ok {
		t.Fatalf("Read(%s) found nothing", rid)
	}
	return o
}

func intOf(t *testing.T, s *Store, rid core.RID) int64 {
	v, ok := Get[int64](mustRead(t, s, rid), fInt)
	if !ok {
		t.Fatalf("%s has no IntValue", rid)
	}
	return v
}

func stringOf(t *testing.T, s *Store, rid core.RID) string {
	v, ok := Get[string](mustRead(t, s, rid), fString)
	if !ok {
		t.Fatalf("%s has no StringValue", rid)
	}
	return v
}

// expectViolation runs 'fn' and checks it panics with a contract violation
// of 'code'.
func expectViolation(t *testing.T, code core.Error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok {
			t.Fatalf("expected a %s panic, got %v", code, r)
		}
		var ce *core.ContractError
		if !errors.As(err, &ce) || !code.Is(err) {
			t.Fatalf("expected a %s contract violation, got %v", code, err)
		}
	}()
	fn()
}
