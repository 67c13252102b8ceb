// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package schema

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
)

// ValueType is the per-value-type plugin the store calls through. The store
// never looks inside a value; it only constructs, copies, destroys, and
// type-checks it.
type ValueType interface {
	// Name is the name fields use to refer to this value type.
	Name() string

	// Size and Align describe the in-memory footprint of one value.
	Size() uintptr
	Align() uintptr

	// Construct returns the value an unset field reads as.
	Construct() interface{}

	// Copy returns a deep copy of 'src'.
	Copy(src interface{}) interface{}

	// Destroy releases anything 'v' holds. It is called exactly once for each
	// value the store copied into a snapshot. Constructed defaults are handed
	// to readers and never stored, so they are not destroyed.
	Destroy(v interface{})

	// Accepts returns true if 'v' can be stored in a field of this type.
	Accepts(v interface{}) bool
}

// Destroyer is optionally implemented by values that hold something that
// needs releasing when the snapshot holding them is reclaimed.
type Destroyer interface {
	Destroy()
}

// Cloner is optionally implemented by values whose Copy needs to be deeper
// than assignment. Clone must return the same concrete type.
type Cloner interface {
	Clone() interface{}
}

// goType is a ValueType for a Go type T. Copy is assignment unless T
// implements Cloner; Destroy calls Destroyer if T implements it.
type goType[T any] struct {
	name string
}

// ValueOf returns a ValueType for T registered under 'name'.
func ValueOf[T any](name string) ValueType {
	return goType[T]{name: name}
}

func (g goType[T]) Name() string { return g.name }

func (g goType[T]) Size() uintptr {
	var zero T
	return unsafe.Sizeof(zero)
}

func (g goType[T]) Align() uintptr {
	var zero T
	return unsafe.Alignof(zero)
}

func (g goType[T]) Construct() interface{} {
	var zero T
	return zero
}

func (g goType[T]) Copy(src interface{}) interface{} {
	if c, ok := src.(Cloner); ok {
		return c.Clone()
	}
	return src
}

func (g goType[T]) Destroy(v interface{}) {
	if d, ok := v.(Destroyer); ok {
		d.Destroy()
	}
}

func (g goType[T]) Accepts(v interface{}) bool {
	_, ok := v.(T)
	return ok
}

// sliceType copies the backing array so snapshots never share one.
type sliceType[E any] struct {
	goType[[]E]
}

// SliceOf returns a ValueType for []E registered under 'name'.
func SliceOf[E any](name string) ValueType {
	return sliceType[E]{goType[[]E]{name: name}}
}

func (s sliceType[E]) Copy(src interface{}) interface{} {
	in := src.([]E)
	if in == nil {
		return in
	}
	out := make([]E, len(in))
	copy(out, in)
	return out
}

// TypeTable maps value type names to their plugins. It is safe for
// concurrent use.
type TypeTable struct {
	lock  sync.RWMutex
	types map[string]ValueType
}

// NewTypeTable returns a table populated with the builtin value types:
// bool, int32, int64, uint32, uint64, float32, float64, string, bytes, rid.
func NewTypeTable() *TypeTable {
	t := &TypeTable{types: make(map[string]ValueType)}
	for _, vt := range []ValueType{
		ValueOf[bool]("bool"),
		ValueOf[int32]("int32"),
		ValueOf[int64]("int64"),
		ValueOf[uint32]("uint32"),
		ValueOf[uint64]("uint64"),
		ValueOf[float32]("float32"),
		ValueOf[float64]("float64"),
		ValueOf[string]("string"),
		SliceOf[byte]("bytes"),
		ValueOf[core.RID]("rid"),
	} {
		t.types[vt.Name()] = vt
	}
	return t
}

// Register adds a value type. It fails if the name is taken.
func (t *TypeTable) Register(vt ValueType) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if _, ok := t.types[vt.Name()]; ok {
		return fmt.Errorf("value type %q: %w", vt.Name(), core.ErrTypeExists.Error())
	}
	t.types[vt.Name()] = vt
	log.V(1).Infof("registered value type %q size=%d align=%d", vt.Name(), vt.Size(), vt.Align())
	return nil
}

// Lookup returns the value type registered under 'name'.
func (t *TypeTable) Lookup(name string) (ValueType, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	vt, ok := t.types[name]
	return vt, ok
}

// Names returns the registered value type names in sorted order.
func (t *TypeTable) Names() []string {
	t.lock.RLock()
	defer t.lock.RUnlock()
	names := make([]string, 0, len(t.types))
	for n := range t.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
