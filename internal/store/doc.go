// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package store is an in-memory, versioned store of typed resources.
//
// Every resource is named by a core.RID and has a schema.ResourceType. Its
// current field values live in an immutable snapshot. Writers never touch
// that snapshot: Write makes a private deep copy, the caller mutates the
// copy, and Commit publishes it with a single compare-and-swap. Readers load
// the current snapshot with one atomic load and never lock.
//
//	obj, _ := s.Write(rid)
//	obj.SetValue(nameField, "rock")
//	if err := obj.Commit(); core.ErrCommitConflict.Is(err) {
//		// someone else committed rid first; rebuild and retry, or use Update
//	}
//
//	view, ok := s.Read(rid)
//	name, _ := store.Get[string](view, nameField)
//
// # Prototypes
//
// A resource created with CreateFromPrototype inherits every field it hasn't
// set itself from its prototype. Inheritance is resolved at read time, so a
// later commit to the prototype is visible through all of its derived
// resources. Sub-object sets are merged: the prototype's members minus the
// ones this level tombstoned, plus this level's own. ReadNoPrototypes gives a
// view of only what a resource sets itself.
//
// # Ownership
//
// Sub-object and sub-object set fields own their children. Committing a
// child into such a field records the parent on the child, and commits to the
// child bump the version of every ancestor. Destroying a resource destroys
// everything it owns.
//
// # Garbage collection
//
// Superseded snapshots and destroyed resources are queued and reclaimed by
// GarbageCollect, which the application pumps when it chooses. A reader that
// needs to keep using a view across a GarbageCollect call should hold a Pin;
// snapshots retired after the pin was taken are not reclaimed until it is
// released.
package store
