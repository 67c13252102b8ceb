// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/internal/schema"
	"github.com/westerndigitalcorporation/resgraph/internal/stream"
)

// Stream is the byte payload behind a stream field. Reads and writes go
// straight to the stream store; they are not part of any transaction and
// are not safe for concurrent writers.
type Stream struct {
	store    *stream.Store
	ref      stream.Ref
	writable bool
}

// Ref returns what the field stores.
func (st *Stream) Ref() stream.Ref {
	return st.ref
}

// Path returns the mapped file, or "" for a generated buffer.
func (st *Stream) Path() string {
	return st.ref.Path
}

// Get returns a copy of the whole payload.
func (st *Stream) Get() ([]byte, error) {
	return st.store.Read(st.ref)
}

// Size returns the payload length.
func (st *Stream) Size() (int64, error) {
	return st.store.Size(st.ref)
}

// Set replaces the whole payload. Only streams obtained through
// Object.WriteStream can be set.
func (st *Stream) Set(data []byte) error {
	if !st.writable {
		core.Violatef(core.ErrReadOnly, "setting read-only stream %s", st.ref)
	}
	return st.store.Write(st.ref, data)
}

// Stream returns the stream in field 'i', resolved through prototypes like
// any other field.
func (o *Object) Stream(i int) (*Stream, bool) {
	o.typ.Check(i, schema.FieldStream)
	d, ok := o.lookup(i)
	if !ok {
		return nil, false
	}
	return &Stream{store: o.store.streams, ref: d.values[i].(stream.Ref)}, true
}

// WriteStream returns the local stream of field 'i' for writing. If the
// field isn't set at this level a new buffer is generated for it, so
// writing never touches a prototype's payload.
func (o *Object) WriteStream(i int) *Stream {
	o.mutable(i, schema.FieldStream)
	if !o.data.set[i] {
		ref := stream.NewRef()
		o.data.values[i] = ref
		o.data.set[i] = true
		o.newStreams = append(o.newStreams, ref)
	}
	return &Stream{store: o.store.streams, ref: o.data.values[i].(stream.Ref), writable: true}
}

// MapStream points field 'i' at an existing file. The file is read and
// written in place and never deleted by the store.
func (o *Object) MapStream(i int, path string) {
	o.mutable(i, schema.FieldStream)
	if path == "" {
		core.Violatef(core.ErrInvalidArgument, "mapping %s field %d to empty path", o.rid, i)
	}
	if o.data.set[i] {
		o.dropStream(o.data.values[i].(stream.Ref))
	}
	o.data.values[i] = stream.Ref{Path: path}
	o.data.set[i] = true
}

// dropStream arranges for a generated buffer this transaction no longer
// references to be removed.
func (o *Object) dropStream(ref stream.Ref) {
	if ref.Path != "" {
		return
	}
	for j, r := range o.newStreams {
		if r == ref {
			// Never published, nobody can be reading it.
			o.newStreams = append(o.newStreams[:j], o.newStreams[j+1:]...)
			o.store.streams.Remove(ref)
			return
		}
	}
	o.dropStreams = append(o.dropStreams, ref)
}
