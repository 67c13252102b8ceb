// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package stream

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
)

// Backend stores whole buffers by id. Buffers are always written and read in
// one piece.
type Backend interface {
	// Put replaces the buffer 'id' with 'data'.
	Put(id string, data []byte) error

	// Get returns the buffer 'id', or ErrNoSuchStream.
	Get(id string) ([]byte, error)

	// Delete removes the buffer 'id'. Deleting a missing buffer is not an
	// error.
	Delete(id string) error

	// Close releases the backend.
	Close() error
}

//------------------
// File backend
//------------------

// FileBackend keeps one file per buffer in a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates 'dir' if needed and returns a backend rooted there.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Errorf("failed to create stream dir %s: %s", dir, err)
		return nil, fmt.Errorf("%s: %w", err, core.ErrIO.Error())
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) path(id string) string {
	return filepath.Join(f.dir, id)
}

// Put writes the buffer to a temporary file and renames it into place, so a
// reader never sees a partially written buffer.
func (f *FileBackend) Put(id string, data []byte) error {
	tmp := f.path(id) + ".tmp"
	if err := ioutil.WriteFile(tmp, data, 0644); err != nil {
		log.Errorf("failed to write stream %s: %s", id, err)
		return fmt.Errorf("%s: %w", err, core.ErrIO.Error())
	}
	if err := os.Rename(tmp, f.path(id)); err != nil {
		os.Remove(tmp)
		log.Errorf("failed to rename stream %s: %s", id, err)
		return fmt.Errorf("%s: %w", err, core.ErrIO.Error())
	}
	return nil
}

// Get reads the whole buffer.
func (f *FileBackend) Get(id string) ([]byte, error) {
	data, err := ioutil.ReadFile(f.path(id))
	if os.IsNotExist(err) {
		return nil, core.ErrNoSuchStream.Error()
	} else if err != nil {
		log.Errorf("failed to read stream %s: %s", id, err)
		return nil, fmt.Errorf("%s: %w", err, core.ErrIO.Error())
	}
	return data, nil
}

// Delete removes the buffer's file.
func (f *FileBackend) Delete(id string) error {
	if err := os.Remove(f.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%s: %w", err, core.ErrIO.Error())
	}
	return nil
}

// Close is a no-op for files.
func (f *FileBackend) Close() error {
	return nil
}

//------------------
// Bolt backend
//------------------

var streamBucket = []byte("streams") // Bucket that stores all buffers, keyed by id.

// BoltBackend keeps all buffers in one boltdb file. Useful when a store has
// many small streams and a file per buffer would be wasteful.
type BoltBackend struct {
	db *bolt.DB
}

// OpenBoltBackend opens or creates the database at 'path'.
func OpenBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		log.Errorf("failed to open stream DB %s: %s", path, err)
		return nil, fmt.Errorf("%s: %w", err, core.ErrIO.Error())
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(streamBucket)
		return err
	})
	if err != nil {
		db.Close()
		log.Errorf("failed to create stream bucket: %s", err)
		return nil, fmt.Errorf("%s: %w", err, core.ErrIO.Error())
	}
	return &BoltBackend{db: db}, nil
}

// Put stores the buffer in a read-write transaction.
func (b *BoltBackend) Put(id string, data []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(streamBucket).Put([]byte(id), data)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", err, core.ErrIO.Error())
	}
	return nil
}

// Get copies the buffer out of a read-only transaction; bolt's slices are
// only valid while the transaction is open.
func (b *BoltBackend) Get(id string) (out []byte, err error) {
	err = b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(streamBucket).Get([]byte(id))
		if v == nil {
			return core.ErrNoSuchStream.Error()
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return
}

// Delete removes the buffer.
func (b *BoltBackend) Delete(id string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(streamBucket).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("%s: %w", err, core.ErrIO.Error())
	}
	return nil
}

// Close closes the database.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
