// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package schema

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
)

// TypeDef is the JSON form of a resource type. Fields get indices in the
// order they are listed. A zero ID is derived from the name.
type TypeDef struct {
	Name   string     `json:"name"`
	ID     uint64     `json:"id,omitempty"`
	Fields []FieldDef `json:"fields"`
}

// FieldDef is the JSON form of a field. Kind is one of "value",
// "subobject", "subobjectset" or "stream"; ValueType is only used by value
// fields.
type FieldDef struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	ValueType string `json:"value_type,omitempty"`
}

// LoadTypes decodes a JSON array of TypeDef from 'r' and registers each of
// them with 'reg', in order. It stops at the first type that fails.
func LoadTypes(r io.Reader, reg *Registry) ([]*ResourceType, error) {
	var defs []TypeDef
	if err := json.NewDecoder(r).Decode(&defs); err != nil {
		return nil, fmt.Errorf("decoding types: %s: %w", err, core.ErrInvalidSchema.Error())
	}

	var out []*ResourceType
	for _, def := range defs {
		id := core.TypeID(def.ID)
		if !id.IsValid() {
			id = core.TypeIDFromName(def.Name)
		}
		specs := make([]FieldSpec, len(def.Fields))
		for i, f := range def.Fields {
			kind, ok := ParseFieldKind(f.Kind)
			if !ok {
				return out, fmt.Errorf("%s.%s: unknown field kind %q: %w", def.Name, f.Name, f.Kind, core.ErrInvalidSchema.Error())
			}
			specs[i] = FieldSpec{Index: i, Name: f.Name, Kind: kind, ValueType: f.ValueType}
		}
		typ, err := reg.CreateResourceType(def.Name, id, specs)
		if err != nil {
			return out, err
		}
		out = append(out, typ)
	}
	return out, nil
}
