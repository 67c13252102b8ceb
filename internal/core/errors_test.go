// Copyright (c) 2015 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorDescriptions(t *testing.T) {
	for e := NoError; e <= ErrUnknown; e++ {
		if _, ok := description[e]; !ok {
			t.Errorf("error %d has no description", e)
		}
	}
}

func TestErrorWrapping(t *testing.T) {
	if NoError.Error() != nil {
		t.Fatalf("NoError should map to nil")
	}

	err := fmt.Errorf("commit of %s: %w", RIDFromParts(0, 1), ErrCommitConflict.Error())
	if !ErrCommitConflict.Is(err) {
		t.Errorf("wrapped conflict should be recognized")
	}
	if ErrNoSuchResource.Is(err) {
		t.Errorf("wrapped conflict is not ErrNoSuchResource")
	}
	if !errors.Is(err, ErrCommitConflict.Error()) {
		t.Errorf("errors.Is should see through the wrapper")
	}
	if !IsRetriableError(err) {
		t.Errorf("commit conflicts are retriable")
	}
	if IsRetriableError(ErrUnknownType.Error()) {
		t.Errorf("unknown type is not retriable")
	}
	if IsRetriableError(errors.New("plain")) {
		t.Errorf("plain errors are not retriable")
	}
}

func TestViolatef(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok {
			t.Fatalf("expected an error panic, got %v", r)
		}
		if !ErrWrongFieldKind.Is(err) {
			t.Errorf("expected ErrWrongFieldKind, got %v", err)
		}
	}()
	Violatef(ErrWrongFieldKind, "field %d", 3)
}
