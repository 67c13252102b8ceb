// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/internal/schema"
	"github.com/westerndigitalcorporation/resgraph/internal/stream"
	"github.com/westerndigitalcorporation/resgraph/pkg/slices"
)

type txnState int

const (
	stateBuilding txnState = iota
	stateCommitted
	stateDiscarded
)

// Object is a view of one snapshot of a resource. Views returned by Read are
// read-only. Views returned by Write are transactions: they can be mutated
// until Commit or Discard, and can still be read afterwards.
//
// An Object is not safe for concurrent use. Values returned from a view
// belong to the store and must not be modified.
type Object struct {
	store *Store
	st    *storage
	rid   core.RID
	typ   *schema.ResourceType
	data  *snapshot
	proto core.RID

	// Fall through to the prototype chain for fields not set on data.
	prototypes bool

	// Transaction state. Only used when write is set.
	write   bool
	state   txnState
	basis   *snapshot
	links   map[core.RID]int // child -> field, applied on commit
	unlinks map[core.RID]int
	// Buffers created by this transaction, removed if it doesn't commit.
	newStreams []stream.Ref
	// Buffers this transaction stopped referencing, removed once the basis
	// is reclaimed.
	dropStreams []stream.Ref
}

// RID returns the handle of the resource.
func (o *Object) RID() core.RID {
	return o.rid
}

// Type returns the resource type.
func (o *Object) Type() *schema.ResourceType {
	return o.typ
}

// Version returns the current version of the resource, which may be newer
// than the snapshot this view shows.
func (o *Object) Version() uint64 {
	return o.store.Version(o.rid)
}

// Prototype returns the prototype of the resource, or core.NilRID.
func (o *Object) Prototype() core.RID {
	return o.proto
}

// Writable returns true if the view is a transaction that can still be
// mutated.
func (o *Object) Writable() bool {
	return o.write && o.state == stateBuilding
}

// HasLocal returns true if field 'i' is set on this resource itself.
func (o *Object) HasLocal(i int) bool {
	o.typ.Field(i)
	return o.data.set[i]
}

// Has returns true if field 'i' is set on this resource or, for views that
// resolve prototypes, anywhere up the prototype chain.
func (o *Object) Has(i int) bool {
	o.typ.Field(i)
	_, ok := o.lookup(i)
	return ok
}

// Value returns the value of value field 'i'.
func (o *Object) Value(i int) (interface{}, bool) {
	o.typ.Check(i, schema.FieldValue)
	d, ok := o.lookup(i)
	if !ok {
		return nil, false
	}
	return d.values[i], true
}

// Get returns value field 'i' of 'o' as a T. A field set nowhere on the
// prototype chain reads as what its value type constructs, with false. It
// panics with core.ErrWrongValueType if the field holds something else.
func Get[T any](o *Object, i int) (T, bool) {
	v, ok := o.Value(i)
	if !ok {
		zero, _ := o.typ.Field(i).Value.Construct().(T)
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		core.Violatef(core.ErrWrongValueType, "%s.%s holds %T", o.typ.Name(), o.typ.Field(i).Name, v)
	}
	return t, true
}

// SubObject returns the child held by sub-object field 'i', or core.NilRID.
func (o *Object) SubObject(i int) core.RID {
	o.typ.Check(i, schema.FieldSubObject)
	d, ok := o.lookup(i)
	if !ok {
		return core.NilRID
	}
	return d.values[i].(core.RID)
}

// SubObjectSet returns the resolved members of sub-object set field 'i' in
// ascending order: the prototype's resolved members minus the ones
// tombstoned here, plus the ones added here.
func (o *Object) SubObjectSet(i int) []core.RID {
	o.typ.Check(i, schema.FieldSubObjectSet)
	return slices.SortedKeys(o.resolveSet(i))
}

// SubObjectSetCount returns len(o.SubObjectSet(i)).
func (o *Object) SubObjectSetCount(i int) int {
	o.typ.Check(i, schema.FieldSubObjectSet)
	return len(o.resolveSet(i))
}

// PrototypeRemoved returns the inherited members of field 'i' this resource
// hides, in ascending order.
func (o *Object) PrototypeRemoved(i int) []core.RID {
	o.typ.Check(i, schema.FieldSubObjectSet)
	if !o.data.set[i] {
		return nil
	}
	return slices.SortedKeys(o.data.values[i].(*subObjectSet).prototypeRemoved)
}

//-----------------
// Mutation
//-----------------

// mutable checks that 'o' is an open transaction and field 'i' has 'kind'.
func (o *Object) mutable(i int, kind schema.FieldKind) *schema.Field {
	if !o.write {
		core.Violatef(core.ErrReadOnly, "mutating read view of %s", o.rid)
	}
	if o.state != stateBuilding {
		core.Violatef(core.ErrTxnFinished, "mutating finished transaction on %s", o.rid)
	}
	return o.typ.Check(i, kind)
}

// SetValue stores a copy of 'v' in value field 'i'.
func (o *Object) SetValue(i int, v interface{}) {
	f := o.mutable(i, schema.FieldValue)
	if !f.Value.Accepts(v) {
		core.Violatef(core.ErrWrongValueType, "%s.%s is %s, got %T", o.typ.Name(), f.Name, f.Value.Name(), v)
	}
	if o.data.set[i] {
		f.Value.Destroy(o.data.values[i])
	}
	o.data.values[i] = f.Value.Copy(v)
	o.data.set[i] = true
}

// ResetValue drops the local value of field 'i' so it reads through to the
// prototype again.
func (o *Object) ResetValue(i int) {
	f := o.mutable(i, schema.FieldValue)
	if !o.data.set[i] {
		return
	}
	f.Value.Destroy(o.data.values[i])
	o.data.values[i] = nil
	o.data.set[i] = false
}

// SetSubObject makes 'child' the owned child in field 'i'. A previous child
// is released but not destroyed. core.NilRID clears the field.
func (o *Object) SetSubObject(i int, child core.RID) {
	o.mutable(i, schema.FieldSubObject)
	if child == o.rid {
		core.Violatef(core.ErrInvalidArgument, "%s can not own itself", o.rid)
	}
	if o.data.set[i] {
		if old := o.data.values[i].(core.RID); old.IsValid() && old != child {
			o.unlink(old, i)
		}
	}
	o.data.values[i] = child
	o.data.set[i] = true
	if child.IsValid() {
		o.link(child, i)
	}
}

// localSet returns the local set of field 'i', creating it on first use.
func (o *Object) localSet(i int) *subObjectSet {
	if !o.data.set[i] {
		o.data.values[i] = newSubObjectSet()
		o.data.set[i] = true
	}
	return o.data.values[i].(*subObjectSet)
}

// AddToSubObjectSet adds 'child' to set field 'i' and takes ownership of it.
func (o *Object) AddToSubObjectSet(i int, child core.RID) {
	o.mutable(i, schema.FieldSubObjectSet)
	if !child.IsValid() || child == o.rid {
		core.Violatef(core.ErrInvalidArgument, "%s can not hold %s", o.rid, child)
	}
	o.localSet(i).subObjects[child] = struct{}{}
	o.link(child, i)
}

// RemoveFromSubObjectSet removes a child added at this level. The child is
// released but not destroyed. Inherited members are hidden with
// RemoveFromPrototypeSubObjectSet instead.
func (o *Object) RemoveFromSubObjectSet(i int, child core.RID) {
	o.mutable(i, schema.FieldSubObjectSet)
	if !o.data.set[i] {
		return
	}
	set := o.data.values[i].(*subObjectSet)
	if _, ok := set.subObjects[child]; ok {
		delete(set.subObjects, child)
		o.unlink(child, i)
	}
}

// ClearSubObjectSet releases every child added at this level. Tombstones
// are kept.
func (o *Object) ClearSubObjectSet(i int) {
	o.mutable(i, schema.FieldSubObjectSet)
	if !o.data.set[i] {
		return
	}
	set := o.data.values[i].(*subObjectSet)
	for child := range set.subObjects {
		o.unlink(child, i)
	}
	set.subObjects = make(map[core.RID]struct{})
}

// RemoveFromPrototypeSubObjectSet hides inherited member 'child' of field
// 'i' on this resource. The prototype is not touched.
func (o *Object) RemoveFromPrototypeSubObjectSet(i int, child core.RID) {
	o.mutable(i, schema.FieldSubObjectSet)
	o.localSet(i).prototypeRemoved[child] = struct{}{}
}

// CancelRemoveFromPrototypeSubObjectSet undoes RemoveFromPrototypeSubObjectSet.
func (o *Object) CancelRemoveFromPrototypeSubObjectSet(i int, child core.RID) {
	o.mutable(i, schema.FieldSubObjectSet)
	if o.data.set[i] {
		delete(o.data.values[i].(*subObjectSet).prototypeRemoved, child)
	}
}

func (o *Object) link(child core.RID, i int) {
	if o.links == nil {
		o.links = make(map[core.RID]int)
	}
	o.links[child] = i
	log.V(2).Infof("%s will own %s via field %d", o.rid, child, i)
}

// unlink cancels a pending link of the same field, and records that the
// child's back-reference must be cleared if it still points here.
func (o *Object) unlink(child core.RID, i int) {
	if f, ok := o.links[child]; ok && f == i {
		delete(o.links, child)
	}
	if o.unlinks == nil {
		o.unlinks = make(map[core.RID]int)
	}
	o.unlinks[child] = i
}
