// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package schema

import (
	"fmt"
	"unsafe"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
)

// FieldKind says how the store treats a field.
type FieldKind uint8

const (
	// FieldValue holds a value managed by a ValueType.
	FieldValue FieldKind = iota
	// FieldSubObject holds the RID of one owned child.
	FieldSubObject
	// FieldSubObjectSet holds a set of owned children plus tombstones for
	// children inherited from the prototype.
	FieldSubObjectSet
	// FieldStream refers to an out-of-band byte buffer.
	FieldStream
)

var kindNames = [...]string{
	FieldValue:        "value",
	FieldSubObject:    "subobject",
	FieldSubObjectSet: "subobjectset",
	FieldStream:       "stream",
}

func (k FieldKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("FieldKind(%d)", k)
}

// ParseFieldKind is the inverse of FieldKind.String.
func ParseFieldKind(s string) (FieldKind, bool) {
	for k, n := range kindNames {
		if n == s {
			return FieldKind(k), true
		}
	}
	return 0, false
}

// Fixed inline footprints of the non-value kinds. A sub-object is a handle;
// a set is two hash set headers; a stream is a buffer id and a path.
const (
	subObjectSize    = unsafe.Sizeof(core.RID(0))
	subObjectSetSize = 2 * unsafe.Sizeof(map[core.RID]struct{}(nil))
	streamSize       = 2 * unsafe.Sizeof("")
	slotAlign        = unsafe.Sizeof(uintptr(0))
)

// Field describes one field of a ResourceType.
type Field struct {
	Name   string
	Index  int
	Kind   FieldKind
	Offset uintptr
	Size   uintptr

	// Value is only set for FieldValue fields.
	Value ValueType
}

// ResourceType is the immutable schema of a class of resources.
type ResourceType struct {
	name   string
	id     core.TypeID
	fields []Field
	byName map[string]int
	size   uintptr
}

// Name returns the type's name.
func (t *ResourceType) Name() string { return t.name }

// ID returns the type's id.
func (t *ResourceType) ID() core.TypeID { return t.id }

// Size returns the packed size of one snapshot of this type.
func (t *ResourceType) Size() uintptr { return t.size }

// NumFields returns the number of fields.
func (t *ResourceType) NumFields() int { return len(t.fields) }

// Fields returns a copy of the field descriptors in index order.
func (t *ResourceType) Fields() []Field {
	out := make([]Field, len(t.fields))
	copy(out, t.fields)
	return out
}

// Field returns the descriptor for field 'index'. It raises ErrNoSuchField
// for an out of range index.
func (t *ResourceType) Field(index int) *Field {
	if index < 0 || index >= len(t.fields) {
		core.Violatef(core.ErrNoSuchField, "type %s has no field %d", t.name, index)
	}
	return &t.fields[index]
}

// FieldByName returns the index of the named field.
func (t *ResourceType) FieldByName(name string) (int, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// Check returns the descriptor for 'index' after verifying its kind.
func (t *ResourceType) Check(index int, kind FieldKind) *Field {
	f := t.Field(index)
	if f.Kind != kind {
		core.Violatef(core.ErrWrongFieldKind, "%s.%s is a %s field, used as %s", t.name, f.Name, f.Kind, kind)
	}
	return f
}

func (t *ResourceType) String() string {
	return fmt.Sprintf("%s(%s)", t.name, t.id)
}

func align(off, a uintptr) uintptr {
	if a <= 1 {
		return off
	}
	return (off + a - 1) &^ (a - 1)
}

// layout assigns offsets to 'fields' in index order and returns the total size.
func layout(fields []Field) uintptr {
	var off, maxAlign uintptr = 0, 1
	for i := range fields {
		f := &fields[i]
		a := slotAlign
		switch f.Kind {
		case FieldValue:
			f.Size, a = f.Value.Size(), f.Value.Align()
		case FieldSubObject:
			f.Size = subObjectSize
		case FieldSubObjectSet:
			f.Size = subObjectSetSize
		case FieldStream:
			f.Size = streamSize
		}
		off = align(off, a)
		f.Offset = off
		off += f.Size
		if a > maxAlign {
			maxAlign = a
		}
	}
	return align(off, maxAlign)
}
