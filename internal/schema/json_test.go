// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package schema

import (
	"strings"
	"testing"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
)

func TestLoadTypes(t *testing.T) {
	const defs = `[
		{"name": "Texture", "fields": [
			{"name": "Width", "kind": "value", "value_type": "uint32"},
			{"name": "Pixels", "kind": "stream"}
		]},
		{"name": "Material", "id": 77, "fields": [
			{"name": "Name", "kind": "value", "value_type": "string"},
			{"name": "Albedo", "kind": "subobject"},
			{"name": "Layers", "kind": "subobjectset"}
		]}
	]`
	reg := NewRegistry(NewTypeTable())
	types, err := LoadTypes(strings.NewReader(defs), reg)
	if err != nil {
		t.Fatalf("LoadTypes failed: %v", err)
	}
	if len(types) != 2 {
		t.Fatalf("expected 2 types, got %d", len(types))
	}
	if types[0].ID() != core.TypeIDFromName("Texture") {
		t.Errorf("Texture should get a name derived id, got %s", types[0].ID())
	}
	if types[1].ID() != 77 {
		t.Errorf("Material should keep its explicit id, got %s", types[1].ID())
	}
	if f := types[1].Field(2); f.Name != "Layers" || f.Kind != FieldSubObjectSet {
		t.Errorf("bad field %+v", f)
	}
	if _, ok := reg.GetByName("Material"); !ok {
		t.Errorf("Material not registered")
	}
}

func TestLoadTypesErrors(t *testing.T) {
	tests := []struct {
		defs string
		code core.Error
	}{
		{`not json`, core.ErrInvalidSchema},
		{`[{"name": "A", "fields": [{"name": "x", "kind": "blob"}]}]`, core.ErrInvalidSchema},
		{`[{"name": "A", "fields": [{"name": "x", "kind": "value", "value_type": "quaternion"}]}]`, core.ErrUnknownValueType},
		{`[{"name": "A", "fields": []}, {"name": "A", "fields": []}]`, core.ErrTypeExists},
	}
	for _, test := range tests {
		_, err := LoadTypes(strings.NewReader(test.defs), NewRegistry(NewTypeTable()))
		if !test.code.Is(err) {
			t.Errorf("%s: expected %s, got %v", test.defs, test.code, err)
		}
	}
}
