// Copyright (c) 2016 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package slices

import (
	"reflect"
	"testing"
)

func TestEqualUnordered(t *testing.T) {
	tests := []struct {
		a, b []int
		eq   bool
	}{
		{nil, nil, true},
		{nil, []int{}, true},
		{[]int{1, 2, 3}, []int{3, 1, 2}, true},
		{[]int{1, 1, 2}, []int{1, 2, 2}, false},
		{[]int{1}, []int{1, 1}, false},
	}
	for _, test := range tests {
		if got := EqualUnordered(test.a, test.b); got != test.eq {
			t.Errorf("EqualUnordered(%v, %v) = %v", test.a, test.b, got)
		}
	}
}

func TestSortedKeys(t *testing.T) {
	got := SortedKeys(map[uint64]struct{}{5: {}, 1: {}, 3: {}})
	if !reflect.DeepEqual(got, []uint64{1, 3, 5}) {
		t.Errorf("got %v", got)
	}
}
