// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package load

import (
	"encoding/json"
	"fmt"
	"time"
)

// Byte size constants
const (
	KB = 1024        // How many bytes are there in a kilobyte,
	MB = 1024 * 1024 // ... and in a megabyte.
)

// Config includes the parameters of one load run.
type Config struct {
	Nodes   int // Number of node resources under the root.
	Writers int // Number of concurrent writer goroutines.
	Readers int // Number of concurrent reader goroutines.

	// Durations must be parsable by time.ParseDuration. They are parsed into
	// the unexported fields below by Validate, so they can be written as
	// "3s" in JSON instead of nanoseconds.
	Duration   string // How long to inject load.
	GCInterval string // How often the collector pumps while the load runs.
	duration   time.Duration
	gcInterval time.Duration

	// Which node a writer updates next; samples are taken modulo Nodes.
	Pick VariateConfig

	// Size of the stream payload a writer stores along with each update.
	// Samples below one byte skip the stream write.
	PayloadSize VariateConfig

	// Every DestroyEvery-th update of a writer replaces a random node's
	// child with a fresh one and destroys the old one. Zero disables churn.
	DestroyEvery int

	StreamDir       string // Where the store keeps stream buffers.
	StreamBackend   string // "file" or "bolt".
	CompressStreams bool   // Snappy-compress stream buffers.
}

// DefaultConfig is a small load that finishes in a few seconds.
var DefaultConfig = Config{
	Nodes:        256,
	Writers:      8,
	Readers:      4,
	Duration:     "10s",
	GCInterval:   "100ms",
	Pick:         VariateConfig{Name: "Pareto", Seed: 1, Parameters: json.RawMessage(`{"Xm": 1, "Alpha": 1.2}`)},
	PayloadSize:  VariateConfig{Name: "Constant", Parameters: json.RawMessage(`0`)},
	DestroyEvery: 16,

	StreamBackend: "file",
}

// Validate checks the configuration and parses its durations. It must be
// called before the configuration is used to create a Runner.
func (c *Config) Validate() error {
	var err error
	if c.Nodes <= 0 {
		return fmt.Errorf("Nodes must be positive")
	}
	if c.Writers < 0 || c.Readers < 0 || c.Writers+c.Readers == 0 {
		return fmt.Errorf("need at least one writer or reader")
	}
	if c.DestroyEvery < 0 {
		return fmt.Errorf("DestroyEvery can not be negative")
	}
	if c.duration, err = time.ParseDuration(c.Duration); err != nil {
		return fmt.Errorf("failed to parse Duration field: %s", err)
	}
	if c.gcInterval, err = time.ParseDuration(c.GCInterval); err != nil {
		return fmt.Errorf("failed to parse GCInterval field: %s", err)
	}
	if c.gcInterval <= 0 {
		return fmt.Errorf("GCInterval must be positive")
	}
	if _, err = c.Pick.Parse(); err != nil {
		return fmt.Errorf("Pick: %s", err)
	}
	if _, err = c.PayloadSize.Parse(); err != nil {
		return fmt.Errorf("PayloadSize: %s", err)
	}
	return nil
}
