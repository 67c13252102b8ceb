// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sync/atomic"

	log "github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/internal/schema"
	"github.com/westerndigitalcorporation/resgraph/internal/stream"
)

// maxChainDepth bounds walks up prototype and parent chains. Both are trees
// by construction; the bound only protects against a caller wiring a child
// into its own ancestor.
const maxChainDepth = 1 << 12

// Store is a resource store. All methods are safe for concurrent use.
type Store struct {
	cfg      Config
	registry *schema.Registry
	pages    *pageTable
	streams  *stream.Store

	gc     collector
	events eventBus
	index  index

	closed atomic.Bool
}

// New creates a store for resources of the types in 'registry'.
func New(registry *schema.Registry, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", err, core.ErrInvalidArgument.Error())
	}

	var backend stream.Backend
	var err error
	switch cfg.StreamBackend {
	case StreamBackendFile:
		backend, err = stream.NewFileBackend(cfg.StreamDir)
	case StreamBackendBolt:
		backend, err = stream.OpenBoltBackend(filepath.Join(cfg.StreamDir, "streams.db"))
	}
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:      cfg,
		registry: registry,
		pages:    newPageTable(cfg.MaxPages),
		streams: stream.New(backend, stream.Config{
			Compress:     cfg.CompressStreams,
			CacheEntries: cfg.StreamCacheEntries,
		}),
	}
	s.gc.init()
	s.events.init()
	s.index.init()
	log.Infof("opened resource store: %d pages max, %s streams in %s", cfg.MaxPages, cfg.StreamBackend, cfg.StreamDir)
	return s, nil
}

// Close reclaims everything the collector can and closes the stream backend.
// The store must not be used afterwards.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return core.ErrClosed.Error()
	}
	n := s.GarbageCollect()
	log.Infof("closing resource store, %d gc jobs at close", n)
	return s.streams.Close()
}

// Registry returns the schema registry the store was built with.
func (s *Store) Registry() *schema.Registry {
	return s.registry
}

// live returns the slot for 'rid' if it holds a resource that hasn't been
// torn down. Resources marked for destruction are still live until the
// collector gets to them.
func (s *Store) live(rid core.RID) *storage {
	st := s.pages.slot(rid)
	if st == nil || !st.active.Load() || st.id() != rid {
		return nil
	}
	return st
}

//-----------------
// Creation
//-----------------

// CreateResource allocates a resource of type 'typeID'. If 'id' is not
// uuid.Nil and is bound to a live resource, that resource is returned
// instead. A binding held by a destroyed resource moves to the new one.
// The new resource has no snapshot until its first commit, so Read returns
// nothing for it.
func (s *Store) CreateResource(typeID core.TypeID, id uuid.UUID) (core.RID, error) {
	typ, ok := s.registry.Get(typeID)
	if !ok {
		return core.NilRID, fmt.Errorf("type %s: %w", typeID, core.ErrUnknownType.Error())
	}
	rid, _, err := s.create(typ, core.NilRID, id)
	return rid, err
}

// CreateFromPrototype allocates a resource that inherits from 'prototype'.
// It gets the prototype's type and an empty first snapshot, so every field
// reads through to the prototype until it is set.
func (s *Store) CreateFromPrototype(prototype core.RID, id uuid.UUID) (core.RID, error) {
	ps := s.live(prototype)
	if ps == nil {
		return core.NilRID, fmt.Errorf("prototype %s: %w", prototype, core.ErrNoSuchResource.Error())
	}
	rid, st, err := s.create(ps.typ.Load(), prototype, id)
	if err != nil || st == nil {
		return rid, err
	}
	if err := s.begin(st, rid).Commit(); err != nil {
		// Nobody else can have seen the handle yet.
		log.Errorf("failed to publish first snapshot of %s: %s", rid, err)
		return core.NilRID, err
	}
	return rid, nil
}

// create allocates and initializes a slot. If 'id' is already bound it
// returns the bound handle and a nil slot.
func (s *Store) create(typ *schema.ResourceType, prototype core.RID, id uuid.UUID) (core.RID, *storage, error) {
	if s.closed.Load() {
		return core.NilRID, nil, core.ErrClosed.Error()
	}

	if id != uuid.Nil {
		s.index.idLock.Lock()
		defer s.index.idLock.Unlock()
		if rid, ok := s.index.byUUID[id]; ok {
			if s.IsAlive(rid) {
				return rid, nil, nil
			}
			// A dying resource gives up its id to the new one.
			delete(s.index.uuidOf, rid)
			delete(s.index.byUUID, id)
		}
	}

	rid, st, err := s.pages.alloc()
	if err != nil {
		return core.NilRID, nil, err
	}
	st.init(rid, typ, prototype)
	if id != uuid.Nil {
		s.index.byUUID[id] = rid
		s.index.uuidOf[rid] = id
	}
	s.index.addType(typ.ID(), rid)
	mLiveResources.Inc()
	log.V(2).Infof("created %s of type %s prototype %s", rid, typ, prototype)
	return rid, st, nil
}

//-----------------
// Views
//-----------------

// Read returns a view of the current snapshot of 'rid' that resolves unset
// fields through the prototype chain. It returns false if the resource
// doesn't exist or has never been committed.
func (s *Store) Read(rid core.RID) (*Object, bool) {
	return s.read(rid, true)
}

// ReadNoPrototypes is like Read but only shows fields set on 'rid' itself.
func (s *Store) ReadNoPrototypes(rid core.RID) (*Object, bool) {
	return s.read(rid, false)
}

func (s *Store) read(rid core.RID, prototypes bool) (*Object, bool) {
	st := s.live(rid)
	if st == nil {
		return nil, false
	}
	d := st.data.Load()
	if d == nil {
		return nil, false
	}
	return s.view(st, rid, d, prototypes), true
}

// view returns a read view of 'd', which is or was a snapshot of 'st'.
func (s *Store) view(st *storage, rid core.RID, d *snapshot, prototypes bool) *Object {
	return &Object{store: s, st: st, rid: rid, typ: d.typ, data: d, proto: st.prototypeRID(), prototypes: prototypes}
}

// Write starts a transaction on 'rid'. The returned object holds a private
// copy of the current snapshot; nothing done to it is visible to anyone else
// until Commit. A transaction that isn't going to be committed should be
// discarded.
func (s *Store) Write(rid core.RID) (*Object, error) {
	st := s.live(rid)
	if st == nil || st.markedToDestroy.Load() {
		return nil, fmt.Errorf("write %s: %w", rid, core.ErrNoSuchResource.Error())
	}
	return s.begin(st, rid), nil
}

func (s *Store) begin(st *storage, rid core.RID) *Object {
	op := mOps.Start("write")
	defer op.End()

	basis := st.data.Load()
	var d *snapshot
	if basis != nil {
		d = basis.clone()
	} else {
		d = newSnapshot(st.typ.Load())
	}
	o := &Object{
		store:      s,
		st:         st,
		rid:        rid,
		typ:        d.typ,
		data:       d,
		proto:      st.prototypeRID(),
		basis:      basis,
		prototypes: true,
		write:      true,
	}
	runtime.SetFinalizer(o, finalizeWrite)
	return o
}

//-----------------
// Introspection
//-----------------

// IsAlive returns true if 'rid' exists and hasn't been passed to
// DestroyResource.
func (s *Store) IsAlive(rid core.RID) bool {
	st := s.live(rid)
	return st != nil && !st.markedToDestroy.Load()
}

// Version returns the version counter of 'rid'. It increases on every commit
// to the resource and to any resource it owns, directly or not.
func (s *Store) Version(rid core.RID) uint64 {
	if st := s.live(rid); st != nil {
		return st.version.Load()
	}
	return 0
}

// TypeOf returns the type of 'rid'.
func (s *Store) TypeOf(rid core.RID) (*schema.ResourceType, bool) {
	if st := s.live(rid); st != nil {
		return st.typ.Load(), true
	}
	return nil, false
}

// Prototype returns the prototype of 'rid', or core.NilRID.
func (s *Store) Prototype(rid core.RID) core.RID {
	if st := s.live(rid); st != nil {
		return st.prototypeRID()
	}
	return core.NilRID
}

// Parent returns the owner of 'rid' and the index of the field holding it,
// or (core.NilRID, core.NoField).
func (s *Store) Parent(rid core.RID) (core.RID, int) {
	if st := s.live(rid); st != nil {
		return st.parentRID()
	}
	return core.NilRID, core.NoField
}

// Allocated returns how many handles have been handed out, including
// destroyed ones.
func (s *Store) Allocated() uint64 {
	return s.pages.allocated()
}

// bumpVersion increments the version of 'st' and of each of its ancestors.
// The increments are atomic but not ordered with respect to other commits.
func (s *Store) bumpVersion(st *storage) {
	st.version.Add(1)
	parent, _ := st.parentRID()
	for depth := 0; parent.IsValid(); depth++ {
		if depth == maxChainDepth {
			log.Warningf("parent chain of %s is suspiciously deep, stopping version bump", st.id())
			return
		}
		ps := s.live(parent)
		if ps == nil {
			return
		}
		ps.version.Add(1)
		parent, _ = ps.parentRID()
	}
}
