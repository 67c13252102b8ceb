// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package stream stores the payloads of stream fields: byte buffers too large
// to keep inline in a resource snapshot.
//
// A stream field holds a Ref. The Ref either names a generated buffer in the
// Store's Backend, or a file the caller mapped explicitly. Reads and writes
// always move a whole buffer; there is no chunking and no support for two
// writers on the same buffer at once.
package stream

import (
	"fmt"
	"io/ioutil"
	"os"
	"sync"

	log "github.com/golang/glog"
	"github.com/golang/groupcache/lru"
	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
)

var (
	mStreamBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "resgraph",
		Name:      "stream_bytes",
		Help:      "bytes moved through stream fields",
	}, []string{"op"})
	mStreamBytesRead    = mStreamBytes.WithLabelValues("read")
	mStreamBytesWritten = mStreamBytes.WithLabelValues("write")

	mStreamCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "resgraph",
		Name:      "stream_cache",
		Help:      "stream read cache lookups",
	}, []string{"result"})
	mStreamCacheHit  = mStreamCache.WithLabelValues("hit")
	mStreamCacheMiss = mStreamCache.WithLabelValues("miss")
)

// Ref is what a stream field stores inline: a generated buffer id, or an
// explicitly mapped file path. A mapped path takes precedence.
type Ref struct {
	BufferID string
	Path     string
}

// NewRef returns a Ref with a freshly generated buffer id.
func NewRef() Ref {
	return Ref{BufferID: uuid.New().String()}
}

// IsZero returns true if the ref names nothing.
func (r Ref) IsZero() bool {
	return r.BufferID == "" && r.Path == ""
}

func (r Ref) String() string {
	if r.Path != "" {
		return "file:" + r.Path
	}
	return "buffer:" + r.BufferID
}

// Config controls the Store's behavior on top of its Backend.
type Config struct {
	// Compress buffers with snappy before handing them to the backend.
	// Mapped files are never compressed.
	Compress bool

	// CacheEntries is the number of decoded buffers kept in memory. Zero
	// disables the cache.
	CacheEntries int
}

// Store resolves Refs to bytes.
type Store struct {
	backend Backend
	cfg     Config

	// Protects cache, which is not safe for concurrent use by itself.
	lock  sync.Mutex
	cache *lru.Cache
}

// New returns a Store over 'backend'.
func New(backend Backend, cfg Config) *Store {
	s := &Store{backend: backend, cfg: cfg}
	if cfg.CacheEntries > 0 {
		s.cache = lru.New(cfg.CacheEntries)
	}
	return s
}

// Write replaces the whole buffer behind 'ref'.
func (s *Store) Write(ref Ref, data []byte) error {
	if ref.IsZero() {
		return core.ErrInvalidArgument.Error()
	}
	mStreamBytesWritten.Add(float64(len(data)))

	if ref.Path != "" {
		if err := ioutil.WriteFile(ref.Path, data, 0644); err != nil {
			log.Errorf("failed to write mapped stream %s: %s", ref.Path, err)
			return fmt.Errorf("%s: %w", err, core.ErrIO.Error())
		}
		return nil
	}

	stored := data
	if s.cfg.Compress {
		stored = snappy.Encode(nil, data)
	}
	if err := s.backend.Put(ref.BufferID, stored); err != nil {
		s.evict(ref.BufferID)
		return err
	}
	s.remember(ref.BufferID, data)
	return nil
}

// Read returns a copy of the whole buffer behind 'ref'.
func (s *Store) Read(ref Ref) ([]byte, error) {
	if ref.IsZero() {
		return nil, core.ErrNoSuchStream.Error()
	}

	if ref.Path != "" {
		data, err := ioutil.ReadFile(ref.Path)
		if os.IsNotExist(err) {
			return nil, core.ErrNoSuchStream.Error()
		} else if err != nil {
			log.Errorf("failed to read mapped stream %s: %s", ref.Path, err)
			return nil, fmt.Errorf("%s: %w", err, core.ErrIO.Error())
		}
		mStreamBytesRead.Add(float64(len(data)))
		return data, nil
	}

	if data, ok := s.lookup(ref.BufferID); ok {
		mStreamCacheHit.Inc()
		mStreamBytesRead.Add(float64(len(data)))
		return append([]byte(nil), data...), nil
	}
	mStreamCacheMiss.Inc()

	stored, err := s.backend.Get(ref.BufferID)
	if err != nil {
		return nil, err
	}
	data := stored
	if s.cfg.Compress {
		if data, err = snappy.Decode(nil, stored); err != nil {
			log.Errorf("failed to decode stream %s: %s", ref.BufferID, err)
			return nil, fmt.Errorf("%s: %w", err, core.ErrCorruptData.Error())
		}
	}
	mStreamBytesRead.Add(float64(len(data)))
	s.remember(ref.BufferID, data)
	return append([]byte(nil), data...), nil
}

// Size returns the decoded length of the buffer behind 'ref'.
func (s *Store) Size(ref Ref) (int64, error) {
	if ref.Path != "" {
		fi, err := os.Stat(ref.Path)
		if os.IsNotExist(err) {
			return 0, core.ErrNoSuchStream.Error()
		} else if err != nil {
			return 0, fmt.Errorf("%s: %w", err, core.ErrIO.Error())
		}
		return fi.Size(), nil
	}
	if data, ok := s.lookup(ref.BufferID); ok {
		return int64(len(data)), nil
	}
	if ref.IsZero() {
		return 0, core.ErrNoSuchStream.Error()
	}
	stored, err := s.backend.Get(ref.BufferID)
	if err != nil {
		return 0, err
	}
	if s.cfg.Compress {
		n, err := snappy.DecodedLen(stored)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", err, core.ErrCorruptData.Error())
		}
		return int64(n), nil
	}
	return int64(len(stored)), nil
}

// Remove deletes the generated buffer behind 'ref'. Mapped files belong to
// the caller and are left alone.
func (s *Store) Remove(ref Ref) error {
	if ref.Path != "" || ref.BufferID == "" {
		return nil
	}
	s.evict(ref.BufferID)
	return s.backend.Delete(ref.BufferID)
}

// Close closes the backend.
func (s *Store) Close() error {
	s.lock.Lock()
	if s.cache != nil {
		s.cache.Clear()
	}
	s.lock.Unlock()
	return s.backend.Close()
}

func (s *Store) lookup(id string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (s *Store) remember(id string, data []byte) {
	if s.cache == nil {
		return
	}
	s.lock.Lock()
	s.cache.Add(id, append([]byte(nil), data...))
	s.lock.Unlock()
}

func (s *Store) evict(id string) {
	if s.cache == nil {
		return
	}
	s.lock.Lock()
	s.cache.Remove(id)
	s.lock.Unlock()
}
