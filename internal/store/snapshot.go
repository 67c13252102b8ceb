// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/internal/schema"
	"github.com/westerndigitalcorporation/resgraph/internal/stream"
)

// snapshot holds the field values of one committed (or being built) version
// of a resource. Once published it is never modified.
//
// values[i] holds, by field kind:
//
//	FieldValue        whatever the field's ValueType constructs
//	FieldSubObject    core.RID
//	FieldSubObjectSet *subObjectSet
//	FieldStream       stream.Ref
//
// set[i] says whether field i was written at this level. An unset field
// falls through to the prototype.
type snapshot struct {
	typ    *schema.ResourceType
	values []interface{}
	set    []bool
}

// subObjectSet is the inline value of a sub-object set field.
type subObjectSet struct {
	// Children owned at this level.
	subObjects map[core.RID]struct{}
	// Children inherited from the prototype that this level hides.
	prototypeRemoved map[core.RID]struct{}
}

func newSubObjectSet() *subObjectSet {
	return &subObjectSet{
		subObjects:       make(map[core.RID]struct{}),
		prototypeRemoved: make(map[core.RID]struct{}),
	}
}

func (s *subObjectSet) clone() *subObjectSet {
	c := &subObjectSet{
		subObjects:       make(map[core.RID]struct{}, len(s.subObjects)),
		prototypeRemoved: make(map[core.RID]struct{}, len(s.prototypeRemoved)),
	}
	for r := range s.subObjects {
		c.subObjects[r] = struct{}{}
	}
	for r := range s.prototypeRemoved {
		c.prototypeRemoved[r] = struct{}{}
	}
	return c
}

func newSnapshot(typ *schema.ResourceType) *snapshot {
	mSnapshotBytes.Add(float64(typ.Size()))
	return &snapshot{
		typ:    typ,
		values: make([]interface{}, typ.NumFields()),
		set:    make([]bool, typ.NumFields()),
	}
}

// clone deep-copies every field set at this level.
func (d *snapshot) clone() *snapshot {
	c := newSnapshot(d.typ)
	for i, ok := range d.set {
		if !ok {
			continue
		}
		f := d.typ.Field(i)
		switch f.Kind {
		case schema.FieldValue:
			c.values[i] = f.Value.Copy(d.values[i])
		case schema.FieldSubObjectSet:
			c.values[i] = d.values[i].(*subObjectSet).clone()
		default:
			c.values[i] = d.values[i]
		}
		c.set[i] = true
	}
	return c
}

// children returns the sub-objects owned at this level, in field order.
func (d *snapshot) children() (out []core.RID) {
	for i, ok := range d.set {
		if !ok {
			continue
		}
		switch d.typ.Field(i).Kind {
		case schema.FieldSubObject:
			if r := d.values[i].(core.RID); r.IsValid() {
				out = append(out, r)
			}
		case schema.FieldSubObjectSet:
			for r := range d.values[i].(*subObjectSet).subObjects {
				out = append(out, r)
			}
		}
	}
	return
}

// streams returns the stream refs set at this level.
func (d *snapshot) streams() (out []stream.Ref) {
	for i, ok := range d.set {
		if ok && d.typ.Field(i).Kind == schema.FieldStream {
			out = append(out, d.values[i].(stream.Ref))
		}
	}
	return
}

// destroyValues runs the value type's Destroy on every value field, in
// reverse field order. Handles and refs are left alone. The snapshot itself
// is not modified since unpinned readers may still be looking at it.
func (d *snapshot) destroyValues() {
	for i := len(d.set) - 1; i >= 0; i-- {
		if !d.set[i] {
			continue
		}
		if f := d.typ.Field(i); f.Kind == schema.FieldValue {
			f.Value.Destroy(d.values[i])
		}
	}
	mSnapshotBytes.Sub(float64(d.typ.Size()))
}
