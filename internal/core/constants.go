// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package core

// Global constants that several components need to agree on are defined here.
// If a constant is only needed for single component, probably it should not be
// placed here.
const (
	// PageSize is the number of storage slots in one page of the handle
	// table. It is part of the RID encoding and must not change.
	PageSize = 4096

	// DefaultMaxPages bounds the page table. With 4096 slots per page this
	// allows a little over 268 million resources per store.
	DefaultMaxPages = 1 << 16

	// NoField is the parent field index of a resource that has no parent.
	NoField = -1
)
