// Copyright (c) 2015 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package metrics

import (
	"strings"
	"testing"
)

var mTest = NewOpMetric("resgraph_test_ops", "op")

func TestOpMetric(t *testing.T) {
	op := mTest.Start("commit")
	if p := mTest.Pending("commit"); p != 1 {
		t.Errorf("expected 1 pending, got %d", p)
	}
	op.End()

	op = mTest.Start("commit")
	op.Conflict()
	op.End()

	op = mTest.Start("commit")
	op.Failed()
	op.End()

	if c := mTest.Count("all", "commit"); c != 3 {
		t.Errorf("expected 3 ops, got %d", c)
	}
	if c := mTest.Count("conflict", "commit"); c != 1 {
		t.Errorf("expected 1 conflict, got %d", c)
	}
	if c := mTest.Count("failed", "commit"); c != 1 {
		t.Errorf("expected 1 failure, got %d", c)
	}
	if p := mTest.Pending("commit"); p != 0 {
		t.Errorf("expected 0 pending, got %d", p)
	}

	s := mTest.String("commit")
	if !strings.HasPrefix(s, "Total count=1;") {
		t.Errorf("only the successful op should have a latency sample: %q", s)
	}
}
