// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

// demoTypes is loaded when no --schema is given.
const demoTypes = `[
	{"name": "Scene", "fields": [
		{"name": "Name", "kind": "value", "value_type": "string"},
		{"name": "Root", "kind": "subobject"},
		{"name": "Materials", "kind": "subobjectset"}
	]},
	{"name": "Node", "fields": [
		{"name": "Name", "kind": "value", "value_type": "string"},
		{"name": "Visible", "kind": "value", "value_type": "bool"},
		{"name": "Scale", "kind": "value", "value_type": "float32"},
		{"name": "Mesh", "kind": "subobject"},
		{"name": "Children", "kind": "subobjectset"}
	]},
	{"name": "Mesh", "fields": [
		{"name": "Name", "kind": "value", "value_type": "string"},
		{"name": "Vertices", "kind": "value", "value_type": "uint32"},
		{"name": "Data", "kind": "stream"}
	]},
	{"name": "Material", "fields": [
		{"name": "Name", "kind": "value", "value_type": "string"},
		{"name": "Roughness", "kind": "value", "value_type": "float32"},
		{"name": "Metallic", "kind": "value", "value_type": "float32"},
		{"name": "Albedo", "kind": "stream"},
		{"name": "Layers", "kind": "subobjectset"}
	]}
]`
