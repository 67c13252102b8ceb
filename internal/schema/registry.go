// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package schema

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
)

// FieldSpec is the input description of a field. ValueType names an entry
// of the registry's TypeTable and is only used for FieldValue fields.
type FieldSpec struct {
	Index     int
	Name      string
	Kind      FieldKind
	ValueType string
}

// Registry maps type ids to resource types.
type Registry struct {
	table *TypeTable

	lock   sync.RWMutex
	byID   map[core.TypeID]*ResourceType
	byName map[string]*ResourceType
}

// NewRegistry creates an empty registry resolving value types from 'table'.
func NewRegistry(table *TypeTable) *Registry {
	return &Registry{
		table:  table,
		byID:   make(map[core.TypeID]*ResourceType),
		byName: make(map[string]*ResourceType),
	}
}

// TypeTable returns the value type table used by this registry.
func (r *Registry) TypeTable() *TypeTable {
	return r.table
}

// CreateResourceType validates 'fields', resolves their value types, lays
// them out, and registers the resulting type under 'id'.
func (r *Registry) CreateResourceType(name string, id core.TypeID, fields []FieldSpec) (*ResourceType, error) {
	if name == "" || !id.IsValid() {
		return nil, fmt.Errorf("type %q id %s: %w", name, id, core.ErrInvalidArgument.Error())
	}

	t := &ResourceType{
		name:   name,
		id:     id,
		fields: make([]Field, len(fields)),
		byName: make(map[string]int, len(fields)),
	}
	seen := make([]bool, len(fields))
	for _, spec := range fields {
		if spec.Index < 0 || spec.Index >= len(fields) {
			return nil, fmt.Errorf("%s.%s: index %d out of range [0,%d): %w",
				name, spec.Name, spec.Index, len(fields), core.ErrInvalidSchema.Error())
		}
		if seen[spec.Index] {
			return nil, fmt.Errorf("%s: index %d used twice: %w", name, spec.Index, core.ErrInvalidSchema.Error())
		}
		if _, dup := t.byName[spec.Name]; dup || spec.Name == "" {
			return nil, fmt.Errorf("%s: bad or duplicate field name %q: %w", name, spec.Name, core.ErrInvalidSchema.Error())
		}
		seen[spec.Index] = true

		f := Field{Name: spec.Name, Index: spec.Index, Kind: spec.Kind}
		switch spec.Kind {
		case FieldValue:
			vt, ok := r.table.Lookup(spec.ValueType)
			if !ok {
				return nil, fmt.Errorf("%s.%s: value type %q: %w", name, spec.Name, spec.ValueType, core.ErrUnknownValueType.Error())
			}
			f.Value = vt
		case FieldSubObject, FieldSubObjectSet, FieldStream:
		default:
			return nil, fmt.Errorf("%s.%s: %s: %w", name, spec.Name, spec.Kind, core.ErrInvalidSchema.Error())
		}
		t.fields[spec.Index] = f
		t.byName[spec.Name] = spec.Index
	}
	t.size = layout(t.fields)

	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.byID[id]; ok {
		return nil, fmt.Errorf("type id %s: %w", id, core.ErrTypeExists.Error())
	}
	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("type name %q: %w", name, core.ErrTypeExists.Error())
	}
	r.byID[id] = t
	r.byName[name] = t
	log.Infof("registered resource type %s with %d fields, %d bytes", t, len(t.fields), t.size)
	return t, nil
}

// Get returns the type registered under 'id'.
func (r *Registry) Get(id core.TypeID) (*ResourceType, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// GetByName returns the type registered under 'name'.
func (r *Registry) GetByName(name string) (*ResourceType, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// Types returns all registered types sorted by name.
func (r *Registry) Types() []*ResourceType {
	r.lock.RLock()
	out := make([]*ResourceType, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	r.lock.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Builder accumulates fields in declaration order, assigning indices
// sequentially. It is a convenience over CreateResourceType.
type Builder struct {
	name   string
	id     core.TypeID
	fields []FieldSpec
}

// NewBuilder starts a type named 'name' with the given id.
func NewBuilder(name string, id core.TypeID) *Builder {
	return &Builder{name: name, id: id}
}

func (b *Builder) add(name string, kind FieldKind, valueType string) *Builder {
	b.fields = append(b.fields, FieldSpec{Index: len(b.fields), Name: name, Kind: kind, ValueType: valueType})
	return b
}

// Value adds a value field of the named value type.
func (b *Builder) Value(name, valueType string) *Builder {
	return b.add(name, FieldValue, valueType)
}

// SubObject adds a single-child ownership field.
func (b *Builder) SubObject(name string) *Builder {
	return b.add(name, FieldSubObject, "")
}

// SubObjectSet adds a child-set ownership field.
func (b *Builder) SubObjectSet(name string) *Builder {
	return b.add(name, FieldSubObjectSet, "")
}

// Stream adds a stream field.
func (b *Builder) Stream(name string) *Builder {
	return b.add(name, FieldStream, "")
}

// Build registers the type with 'r'.
func (b *Builder) Build(r *Registry) (*ResourceType, error) {
	return r.CreateResourceType(b.name, b.id, b.fields)
}
