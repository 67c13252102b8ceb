// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package schema describes the layout of resources.
//
// A ResourceType is an ordered list of fields. Each field has a kind:
//
//	FieldValue        - a plain value handled by a ValueType plugin
//	FieldSubObject    - a single owned child resource
//	FieldSubObjectSet - a set of owned child resources
//	FieldStream       - an out-of-band byte buffer
//
// Value types are looked up by name in a TypeTable, which stands in for the
// reflection layer of the engine: it supplies construct/copy/destroy and the
// size and alignment of each value type. Field offsets and the total size of
// a snapshot are computed from those when the type is built.
//
// Types are registered once, before any resource of that type exists, and are
// immutable afterwards:
//
//	reg := schema.NewRegistry(schema.NewTypeTable())
//	mat, err := reg.CreateResourceType("Material", core.TypeIDFromName("Material"), []schema.FieldSpec{
//		{Index: 0, Name: "Name", Kind: schema.FieldValue, ValueType: "string"},
//		{Index: 1, Name: "Roughness", Kind: schema.FieldValue, ValueType: "float32"},
//		{Index: 2, Name: "Textures", Kind: schema.FieldSubObjectSet},
//	})
package schema
