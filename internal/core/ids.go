// Copyright (c) 2016 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package core

import (
	"errors"
	"fmt"
	"hash/fnv"
)

/*

A RID identifies a resource for the lifetime of the process. It is derived
from a monotonic counter and names a slot in the store's page table:

     +--------------------+----------------------+
     |  Page (4 bytes)    |  Offset (4 bytes)    |
     +--------------------+----------------------+
     |<----------------------------------------->|
                      RID (8 bytes)

   page   = counter / PageSize
   offset = counter % PageSize

The counter starts at 1 so the zero RID is never handed out and can be used as
"no resource". Slots are never reassigned: once a resource is destroyed its
RID stays invalid forever.

*/

// ErrInvalidID is the error returned when a string representation of an ID is invalid.
var ErrInvalidID = errors.New("invalid id format")

// RID is an opaque resource handle. The zero RID is invalid.
type RID uint64

// NilRID is the invalid resource handle.
const NilRID RID = 0

// RIDFromCounter derives the handle for the n-th allocation.
func RIDFromCounter(n uint64) RID {
	return RIDFromParts(uint32(n/PageSize), uint32(n%PageSize))
}

// RIDFromParts makes a RID from a page number and an offset within the page.
func RIDFromParts(page, offset uint32) RID {
	return RID(uint64(page)<<32 | uint64(offset))
}

// Page returns the page the resource's slot lives in.
func (r RID) Page() uint32 {
	return uint32(r >> 32)
}

// Offset returns the index of the resource's slot in its page.
func (r RID) Offset() uint32 {
	return uint32(r)
}

// IsValid returns if 'r' could name a resource.
func (r RID) IsValid() bool {
	return r != NilRID && r.Offset() < PageSize
}

func (r RID) String() string {
	return fmt.Sprintf("%d:%d", r.Page(), r.Offset())
}

// ParseRID parses a RID from the provided string. The string must be in the
// format produced by RID.String(). If it is not, ErrInvalidID will be
// returned.
func ParseRID(s string) (RID, error) {
	var page, offset uint32
	n, e := fmt.Sscanf(s, "%d:%d", &page, &offset)
	if n != 2 || nil != e || offset >= PageSize {
		return NilRID, ErrInvalidID
	}
	return RIDFromParts(page, offset), nil
}

// TypeID identifies a registered resource type.
type TypeID uint64

// TypeIDFromName derives a stable TypeID from a type name. Callers that
// allocate their own ids are free to ignore this.
func TypeIDFromName(name string) TypeID {
	h := fnv.New64a()
	h.Write([]byte(name))
	return TypeID(h.Sum64())
}

// IsValid returns if 't' is a usable TypeID. Zero is reserved.
func (t TypeID) IsValid() bool {
	return t != 0
}

func (t TypeID) String() string {
	return fmt.Sprintf("%016x", uint64(t))
}
