// Copyright (c) 2015 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package core

import (
	"fmt"

	log "github.com/golang/glog"
)

// Error is our own defined error type. Operations that can fail in the normal
// course of things return one of these wrapped as a Go error.
type Error int

const (
	// NoError means no error.
	NoError = Error(iota)

	//------ Resource level errors ------//

	// ErrNoSuchResource is returned when an operation requires a live
	// resource but the handle is invalid, destroyed, or was never allocated.
	ErrNoSuchResource

	// ErrCommitConflict is returned by Commit when another writer published a
	// new snapshot of the same resource after our Write started. The private
	// snapshot has been discarded; the caller can rebuild and try again.
	ErrCommitConflict

	// ErrTxnFinished is returned when a transaction is used after it has been
	// committed or discarded.
	ErrTxnFinished

	// ErrReadOnly is returned when a mutation is attempted through a read view.
	ErrReadOnly

	// ErrTooManyResources is returned if the handle table is full.
	ErrTooManyResources

	//------ Schema level errors ------//

	// ErrUnknownType is returned when a resource is created with a type id
	// that was never registered.
	ErrUnknownType

	// ErrTypeExists is returned when a type id or name is registered twice.
	ErrTypeExists

	// ErrInvalidSchema is returned if field indices are missing, duplicated or
	// not contiguous.
	ErrInvalidSchema

	// ErrUnknownValueType is returned if a field names a value type the type
	// table doesn't know about.
	ErrUnknownValueType

	// ErrWrongFieldKind is raised when a field accessor is used on a field of
	// another kind, e.g. SetValue on a sub-object set.
	ErrWrongFieldKind

	// ErrWrongValueType is raised when a value doesn't match its field's
	// value type.
	ErrWrongValueType

	// ErrNoSuchField is raised for an out of range field index or unknown name.
	ErrNoSuchField

	//------ Stream level errors ------//

	// ErrNoSuchStream is returned when a stream buffer has never been written.
	ErrNoSuchStream

	// ErrIO is returned if there is an OS-level IO error.
	ErrIO

	// ErrCorruptData is returned if a stored stream can't be decoded.
	ErrCorruptData

	//------ Errors from any level ------//

	// ErrInvalidArgument is returned if an argument is bad or confusing.
	ErrInvalidArgument

	// ErrClosed is returned for operations on a store after Close.
	ErrClosed

	// ErrCanceled is returned when a context is canceled during a retry loop.
	ErrCanceled

	//------ Meta-error ------//

	// ErrUnknown is an error that we're not really sure about.
	ErrUnknown
)

var description = map[Error]string{
	NoError: "no error",

	// Resource level errors.
	ErrNoSuchResource:   "resource does not exist",
	ErrCommitConflict:   "resource was committed concurrently, write discarded",
	ErrTxnFinished:      "transaction already committed or discarded",
	ErrReadOnly:         "mutation through a read-only view",
	ErrTooManyResources: "handle table is full",

	// Schema level errors.
	ErrUnknownType:      "resource type is not registered",
	ErrTypeExists:       "resource type already registered",
	ErrInvalidSchema:    "invalid resource type schema",
	ErrUnknownValueType: "value type not found in type table",
	ErrWrongFieldKind:   "field accessed as the wrong kind",
	ErrWrongValueType:   "value does not match field value type",
	ErrNoSuchField:      "field does not exist",

	// Stream level errors.
	ErrNoSuchStream: "stream buffer does not exist",
	ErrIO:           "I/O level error",
	ErrCorruptData:  "stream data is corrupt",

	// Errors from any level, really.
	ErrInvalidArgument: "invalid argument",
	ErrClosed:          "store is closed",
	ErrCanceled:        "request canceled",

	// Meta-error.
	ErrUnknown: "unknown error!!!! contact a programming professional to diagnose",
}

// String returns a human readable error message.
func (e Error) String() string {
	if s, ok := description[e]; ok {
		return s
	}
	return "NO DESCRIPTION FOR ERROR FIX THIS"
}

// Error returns a golang error object with an error message corresponding to
// this core.Error.
func (e Error) Error() error {
	if e == NoError {
		return nil
	}
	return goError(e)
}

// Is checks whether the generic Go error 'g' is actually the receiver error
// underneath. Wrapped errors are unwrapped.
func (e Error) Is(g error) bool {
	ce, ok := CoreError(g)
	return ok && ce == e
}

// goError is a wrapper type to make our Error act like Go's 'error'
type goError Error

// Error implements the 'error' interface.
func (g goError) Error() string {
	return (Error)(g).String()
}

// CoreError gets the underlying core.Error from an error, looking through
// wrappers that implement Unwrap.
func CoreError(err error) (Error, bool) {
	for err != nil {
		switch e := err.(type) {
		case goError:
			return Error(e), true
		case interface{ Unwrap() error }:
			err = e.Unwrap()
		default:
			return NoError, false
		}
	}
	return NoError, false
}

// IsRetriableError checks if we should retry on a given returned error.
// We consider errors that might be transient to be retriable errors.
func IsRetriableError(err error) bool {
	e, ok := CoreError(err)
	if !ok {
		return false
	}
	switch e {
	case ErrCommitConflict:
		return true
	}
	return false
}

// ContractError is the panic value raised when the store is used in a way
// that can only be a bug in the caller, such as calling SetValue on a
// sub-object set field.
type ContractError struct {
	Code   Error
	Detail string
}

func (c *ContractError) Error() string {
	return fmt.Sprintf("%s: %s", c.Code, c.Detail)
}

// Unwrap returns the Go error for Code.
func (c *ContractError) Unwrap() error {
	return c.Code.Error()
}

// Violatef logs and panics with a ContractError.
func Violatef(code Error, format string, args ...interface{}) {
	err := &ContractError{Code: code, Detail: fmt.Sprintf(format, args...)}
	log.Errorf("contract violation: %s", err)
	panic(err)
}
