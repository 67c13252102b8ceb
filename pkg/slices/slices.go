// Copyright (c) 2016 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package slices

import (
	"cmp"
	"sort"
)

// EqualUnordered compares if two (unsorted) slices have the same elements,
// counting duplicates.
func EqualUnordered[T comparable](slice1, slice2 []T) bool {
	if len(slice1) != len(slice2) {
		return false
	}

	m := make(map[T]int, len(slice1))
	for _, s1 := range slice1 {
		m[s1]++
	}
	for _, s2 := range slice2 {
		if m[s2] == 0 {
			return false
		}
		m[s2]--
	}
	return true
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
