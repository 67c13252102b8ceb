// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/pkg/slices"
)

// index maps external names and types to handles. Each map has its own
// lock; none of them is touched on the read path.
type index struct {
	idLock sync.Mutex
	byUUID map[uuid.UUID]core.RID
	uuidOf map[core.RID]uuid.UUID

	pathLock sync.Mutex
	byPath   map[string]core.RID
	pathOf   map[core.RID]string

	typeLock sync.RWMutex
	byType   map[core.TypeID]map[core.RID]struct{}
}

func (x *index) init() {
	x.byUUID = make(map[uuid.UUID]core.RID)
	x.uuidOf = make(map[core.RID]uuid.UUID)
	x.byPath = make(map[string]core.RID)
	x.pathOf = make(map[core.RID]string)
	x.byType = make(map[core.TypeID]map[core.RID]struct{})
}

func (x *index) addType(typeID core.TypeID, rid core.RID) {
	x.typeLock.Lock()
	defer x.typeLock.Unlock()
	m, ok := x.byType[typeID]
	if !ok {
		m = make(map[core.RID]struct{})
		x.byType[typeID] = m
	}
	m[rid] = struct{}{}
}

// forget drops every name of a torn down resource.
func (x *index) forget(rid core.RID, typeID core.TypeID) {
	x.idLock.Lock()
	if id, ok := x.uuidOf[rid]; ok {
		delete(x.byUUID, id)
		delete(x.uuidOf, rid)
	}
	x.idLock.Unlock()

	x.pathLock.Lock()
	if path, ok := x.pathOf[rid]; ok {
		delete(x.byPath, path)
		delete(x.pathOf, rid)
	}
	x.pathLock.Unlock()

	x.typeLock.Lock()
	delete(x.byType[typeID], rid)
	x.typeLock.Unlock()
}

// GetByUUID returns the resource bound to 'id'.
func (s *Store) GetByUUID(id uuid.UUID) (core.RID, bool) {
	s.index.idLock.Lock()
	rid, ok := s.index.byUUID[id]
	s.index.idLock.Unlock()
	return rid, ok && s.IsAlive(rid)
}

// UUIDOf returns the external id bound to 'rid'.
func (s *Store) UUIDOf(rid core.RID) (uuid.UUID, bool) {
	s.index.idLock.Lock()
	defer s.index.idLock.Unlock()
	id, ok := s.index.uuidOf[rid]
	return id, ok
}

// SetUUID binds 'id' to 'rid', replacing any id 'rid' had. uuid.Nil unbinds.
// An id bound to another live resource is not stolen.
func (s *Store) SetUUID(rid core.RID, id uuid.UUID) error {
	if !s.IsAlive(rid) {
		return fmt.Errorf("set uuid of %s: %w", rid, core.ErrNoSuchResource.Error())
	}
	x := &s.index
	x.idLock.Lock()
	defer x.idLock.Unlock()
	if id != uuid.Nil {
		if other, ok := x.byUUID[id]; ok && other != rid {
			if s.IsAlive(other) {
				return fmt.Errorf("uuid %s is bound to %s: %w", id, other, core.ErrInvalidArgument.Error())
			}
			delete(x.uuidOf, other)
		}
	}
	if old, ok := x.uuidOf[rid]; ok {
		delete(x.byUUID, old)
		delete(x.uuidOf, rid)
	}
	if id != uuid.Nil {
		x.byUUID[id] = rid
		x.uuidOf[rid] = id
	}
	return nil
}

// GetByPath returns the resource bound to 'path'.
func (s *Store) GetByPath(path string) (core.RID, bool) {
	s.index.pathLock.Lock()
	rid, ok := s.index.byPath[path]
	s.index.pathLock.Unlock()
	return rid, ok && s.IsAlive(rid)
}

// PathOf returns the path bound to 'rid'.
func (s *Store) PathOf(rid core.RID) (string, bool) {
	s.index.pathLock.Lock()
	defer s.index.pathLock.Unlock()
	path, ok := s.index.pathOf[rid]
	return path, ok
}

// SetPath binds 'path' to 'rid', replacing any path 'rid' had. A path bound
// to another resource is not stolen.
func (s *Store) SetPath(rid core.RID, path string) error {
	if path == "" {
		return core.ErrInvalidArgument.Error()
	}
	if !s.IsAlive(rid) {
		return fmt.Errorf("set path of %s: %w", rid, core.ErrNoSuchResource.Error())
	}
	x := &s.index
	x.pathLock.Lock()
	defer x.pathLock.Unlock()
	if other, ok := x.byPath[path]; ok && other != rid {
		return fmt.Errorf("path %q is bound to %s: %w", path, other, core.ErrInvalidArgument.Error())
	}
	if old, ok := x.pathOf[rid]; ok {
		delete(x.byPath, old)
	}
	x.byPath[path] = rid
	x.pathOf[rid] = path
	return nil
}

// RemovePath unbinds 'path'. It returns false if it wasn't bound.
func (s *Store) RemovePath(path string) bool {
	x := &s.index
	x.pathLock.Lock()
	defer x.pathLock.Unlock()
	rid, ok := x.byPath[path]
	if ok {
		delete(x.byPath, path)
		delete(x.pathOf, rid)
	}
	return ok
}

// ResourcesByType returns the resources of type 'typeID' that haven't been
// torn down, in ascending order.
func (s *Store) ResourcesByType(typeID core.TypeID) []core.RID {
	s.index.typeLock.RLock()
	defer s.index.typeLock.RUnlock()
	return slices.SortedKeys(s.index.byType[typeID])
}

// Count returns the number of resources that haven't been torn down.
func (s *Store) Count() int {
	s.index.typeLock.RLock()
	defer s.index.typeLock.RUnlock()
	n := 0
	for _, m := range s.index.byType {
		n += len(m)
	}
	return n
}
