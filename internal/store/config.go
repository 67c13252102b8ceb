// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"fmt"
	"time"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
	"github.com/westerndigitalcorporation/resgraph/pkg/retry"
)

// Stream backend names.
const (
	StreamBackendFile = "file"
	StreamBackendBolt = "bolt"
)

// Config encapsulates parameters for Store.
type Config struct {
	MaxPages int // How many pages of core.PageSize slots can the handle table hold?

	StreamBackend      string // "file" or "bolt".
	StreamDir          string // Where stream buffers (or the bolt file) live.
	CompressStreams    bool   // Snappy-compress stream buffers.
	StreamCacheEntries int    // Number of decoded stream buffers cached in memory, 0 disables.

	// Backoff used by Update when a commit loses a race, and when a destroyed
	// child detaches itself from its parent.
	CommitRetry retry.Retrier
}

// Validate validates the configuration object has reasonable(not obviously
// wrong) values.
func (c *Config) Validate() error {
	if c.MaxPages <= 0 || int64(c.MaxPages) > 1<<32 {
		return fmt.Errorf("MaxPages must be in (0, 2^32], got %d", c.MaxPages)
	}
	if c.StreamBackend != StreamBackendFile && c.StreamBackend != StreamBackendBolt {
		return fmt.Errorf("unknown stream backend %q", c.StreamBackend)
	}
	if c.StreamDir == "" {
		return fmt.Errorf("StreamDir can not be empty")
	}
	if c.StreamCacheEntries < 0 {
		return fmt.Errorf("StreamCacheEntries can not be negative")
	}
	return nil
}

// DefaultConfig specifies the default values for Config. StreamDir has no
// sensible default and must be filled in by the caller.
var DefaultConfig = Config{
	MaxPages: core.DefaultMaxPages,

	StreamBackend:      StreamBackendFile,
	CompressStreams:    false,
	StreamCacheEntries: 64,

	// Writers of the same resource should rarely collide, so a handful of
	// quick retries is plenty.
	CommitRetry: retry.Retrier{
		MinSleep:      100 * time.Microsecond,
		MaxSleep:      50 * time.Millisecond,
		MaxNumRetries: 16,
	},
}
