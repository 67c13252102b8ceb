// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/pkg/testutil"
)

func TestStreams(t *testing.T) {
	for _, backend := range []string{StreamBackendFile, StreamBackendBolt} {
		cfg := testConfig(t)
		cfg.StreamBackend = backend
		cfg.CompressStreams = true
		s := newTestStoreWithConfig(t, cfg)

		payload := bytes.Repeat([]byte{1, 2, 3, 4}, 4096)
		proto := newThing(t, s, 0, "proto")
		commit(t, s, proto, func(w *Object) {
			if err := w.WriteStream(fBlob).Set(payload); err != nil {
				t.Fatalf("%s: stream Set failed: %v", backend, err)
			}
		})

		st, ok := mustRead(t, s, proto).Stream(fBlob)
		if !ok {
			t.Fatalf("%s: no stream after commit", backend)
		}
		if got, err := st.Get(); err != nil || !bytes.Equal(got, payload) {
			t.Errorf("%s: read back wrong payload, err %v", backend, err)
		}
		if n, _ := st.Size(); n != int64(len(payload)) {
			t.Errorf("%s: Size = %d", backend, n)
		}
		expectViolation(t, core.ErrReadOnly, func() { st.Set(nil) })

		// Inherited until written, then private.
		child := derive(t, s, proto)
		if cst, ok := mustRead(t, s, child).Stream(fBlob); !ok || cst.Ref() != st.Ref() {
			t.Errorf("%s: derived resource should inherit the stream", backend)
		}
		commit(t, s, child, func(w *Object) { w.WriteStream(fBlob).Set([]byte("mine")) })
		cst, _ := mustRead(t, s, child).Stream(fBlob)
		if cst.Ref() == st.Ref() {
			t.Errorf("%s: writing a derived stream must not touch the prototype's buffer", backend)
		}
		if got, _ := st.Get(); !bytes.Equal(got, payload) {
			t.Errorf("%s: prototype payload changed", backend)
		}

		// Buffers made by a transaction that never commits go away.
		w, _ := s.Write(proto)
		w.ResetValue(fInt)
		if err := w.WriteStream(fBlob).Set([]byte("same buffer")); err != nil {
			t.Fatalf("%s: Set failed: %v", backend, err)
		}
		w.Discard()
		if got, _ := st.Get(); string(got) != "same buffer" {
			t.Errorf("%s: stream writes are not transactional, got %q", backend, got)
		}

		fresh := newThing(t, s, 0, "fresh")
		w, _ = s.Write(fresh)
		scratch := w.WriteStream(fBlob)
		scratch.Set([]byte("scratch"))
		w.Discard()
		if _, err := scratch.Get(); !core.ErrNoSuchStream.Is(err) {
			t.Errorf("%s: discarded transaction's buffer survived: %v", backend, err)
		}

		// Destroying the owner removes its buffer.
		s.DestroyResource(child)
		s.GarbageCollect()
		if _, err := cst.Get(); !core.ErrNoSuchStream.Is(err) {
			t.Errorf("%s: buffer of destroyed resource survived: %v", backend, err)
		}
		if err := s.Close(); err != nil {
			t.Errorf("%s: Close failed: %v", backend, err)
		}
	}
}

func TestMappedStream(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	path := filepath.Join(testutil.MkTempDir(t, "mapped"), "texture.bin")
	if err := ioutil.WriteFile(path, []byte("pixels"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	rid := newThing(t, s, 0, "texture")
	commit(t, s, rid, func(w *Object) { w.MapStream(fBlob, path) })
	st, _ := mustRead(t, s, rid).Stream(fBlob)
	if st.Path() != path {
		t.Errorf("Path = %q", st.Path())
	}
	if got, err := st.Get(); err != nil || string(got) != "pixels" {
		t.Errorf("mapped read = %q %v", got, err)
	}

	s.DestroyResource(rid)
	s.GarbageCollect()
	if got, err := ioutil.ReadFile(path); err != nil || string(got) != "pixels" {
		t.Errorf("mapped file must survive its resource: %q %v", got, err)
	}
}

func TestClone(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	proto := newThing(t, s, 300, "blahblah")
	src := derive(t, s, proto)
	child := newThing(t, s, 7, "child")
	member := newThing(t, s, 8, "member")
	commit(t, s, src, func(w *Object) {
		w.SetValue(fString, "override")
		w.SetSubObject(fChild, child)
		w.AddToSubObjectSet(fChildren, member)
		w.WriteStream(fBlob).Set([]byte("blob"))
	})

	dup, err := s.Clone(src)
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if dup == src || s.Prototype(dup) != proto {
		t.Errorf("clone should be a new resource with the same prototype")
	}
	if intOf(t, s, dup) != 300 || stringOf(t, s, dup) != "override" {
		t.Errorf("clone values wrong")
	}
	if no, _ := s.ReadNoPrototypes(dup); no.HasLocal(fInt) {
		t.Errorf("clone flattened an inherited value")
	}

	o := mustRead(t, s, dup)
	dchild := o.SubObject(fChild)
	if dchild == child || !dchild.IsValid() || intOf(t, s, dchild) != 7 {
		t.Errorf("sub-object should be cloned, got %s", dchild)
	}
	if p, f := s.Parent(dchild); p != dup || f != fChild {
		t.Errorf("cloned child owned by %s/%d", p, f)
	}
	members := o.SubObjectSet(fChildren)
	if len(members) != 1 || members[0] == member || intOf(t, s, members[0]) != 8 {
		t.Errorf("set members should be cloned, got %v", members)
	}

	sst, _ := mustRead(t, s, src).Stream(fBlob)
	dst, _ := o.Stream(fBlob)
	if dst.Ref() == sst.Ref() {
		t.Errorf("clone shares a generated buffer")
	}
	if got, _ := dst.Get(); string(got) != "blob" {
		t.Errorf("clone stream = %q", got)
	}

	if _, err := s.Clone(core.RIDFromParts(1, 5)); !core.ErrNoSuchResource.Is(err) {
		t.Errorf("expected ErrNoSuchResource, got %v", err)
	}
}
