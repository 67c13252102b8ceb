// Copyright (c) 2015 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package core

import (
	"math"
	"testing"
)

// testRID creates a RID from the given parts, serializes it to a string,
// deserializes it, and checks that everything went OK.
func testRID(page, offset uint32, t *testing.T) {
	r := RIDFromParts(page, offset)

	if r.Page() != page {
		t.Fatal("page encoding failed")
	}
	if r.Offset() != offset {
		t.Fatal("offset encoding failed")
	}

	newR, e := ParseRID(r.String())
	if nil != e {
		t.Fatal("error parsing from encoded string: " + e.Error())
	}
	if newR != r {
		t.Fatalf("parsed rid %s does not match %s", newR, r)
	}
}

func TestRIDEncoding(t *testing.T) {
	testRID(0, 1, t)
	testRID(1, 0, t)
	testRID(17, PageSize-1, t)
	testRID(math.MaxUint32, PageSize-1, t)
}

func TestRIDFromCounter(t *testing.T) {
	for _, c := range []struct {
		n            uint64
		page, offset uint32
	}{
		{1, 0, 1},
		{PageSize - 1, 0, PageSize - 1},
		{PageSize, 1, 0},
		{3*PageSize + 7, 3, 7},
	} {
		r := RIDFromCounter(c.n)
		if r.Page() != c.page || r.Offset() != c.offset {
			t.Errorf("counter %d: got %d:%d, expected %d:%d", c.n, r.Page(), r.Offset(), c.page, c.offset)
		}
		if !r.IsValid() {
			t.Errorf("counter %d: rid %s should be valid", c.n, r)
		}
	}
	if RIDFromCounter(0).IsValid() {
		t.Errorf("counter 0 must map to the invalid rid")
	}
}

func TestParseRIDErrors(t *testing.T) {
	for _, s := range []string{"", "abc", "1", "1:99999999", "-1:2"} {
		if _, err := ParseRID(s); err != ErrInvalidID {
			t.Errorf("ParseRID(%q) should fail with ErrInvalidID, got %v", s, err)
		}
	}
}

func TestTypeIDFromName(t *testing.T) {
	a := TypeIDFromName("Material")
	if a != TypeIDFromName("Material") {
		t.Errorf("type ids should be stable")
	}
	if a == TypeIDFromName("Texture") {
		t.Errorf("different names should hash differently")
	}
	if !a.IsValid() {
		t.Errorf("hashed type id should be valid")
	}
}
