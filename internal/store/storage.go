// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"sync/atomic"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/internal/schema"
)

// storage is the persistent per-handle state. Everything is atomic because
// readers never lock and a destroyed slot is zeroed in place.
//
// prototype and parent are weak references: they hold a RID, and a dead
// slot is detected by rid no longer matching.
type storage struct {
	rid         atomic.Uint64 // core.RID, zero if the slot is unused or destroyed
	typ         atomic.Pointer[schema.ResourceType]
	data        atomic.Pointer[snapshot] // nil until the first commit
	prototype   atomic.Uint64            // core.RID
	parent      atomic.Uint64            // core.RID
	parentField atomic.Int32
	version     atomic.Uint64

	active          atomic.Bool
	markedToDestroy atomic.Bool
}

func (st *storage) init(rid core.RID, typ *schema.ResourceType, prototype core.RID) {
	st.typ.Store(typ)
	st.prototype.Store(uint64(prototype))
	st.parent.Store(uint64(core.NilRID))
	st.parentField.Store(core.NoField)
	st.version.Store(0)
	st.markedToDestroy.Store(false)
	st.rid.Store(uint64(rid))
	st.active.Store(true)
}

// reset zeroes the slot. The RID that named it is never handed out again.
func (st *storage) reset() {
	st.active.Store(false)
	st.rid.Store(uint64(core.NilRID))
	st.data.Store(nil)
	st.prototype.Store(uint64(core.NilRID))
	st.parent.Store(uint64(core.NilRID))
	st.parentField.Store(core.NoField)
	st.version.Store(0)
	st.typ.Store(nil)
}

func (st *storage) id() core.RID {
	return core.RID(st.rid.Load())
}

func (st *storage) prototypeRID() core.RID {
	return core.RID(st.prototype.Load())
}

func (st *storage) parentRID() (core.RID, int) {
	return core.RID(st.parent.Load()), int(st.parentField.Load())
}

func (st *storage) setParent(parent core.RID, field int) {
	st.parent.Store(uint64(parent))
	st.parentField.Store(int32(field))
}

// clearParent unsets the parent link if it still points at (parent, field).
func (st *storage) clearParent(parent core.RID, field int) {
	if cur, f := st.parentRID(); cur == parent && f == field {
		st.setParent(core.NilRID, core.NoField)
	}
}
