// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/golang/glog"
	"github.com/westerndigitalcorporation/resgraph/internal/load"
	"github.com/westerndigitalcorporation/resgraph/internal/store"
)

// Flags for config parameters.
var (
	// For simple tests, use the following options.
	duration = flag.String("duration", load.DefaultConfig.Duration, "duration to inject load")
	nodes    = flag.Int("nodes", load.DefaultConfig.Nodes, "number of nodes under the root")
	writers  = flag.Int("writers", load.DefaultConfig.Writers, "number of writer goroutines")
	readers  = flag.Int("readers", load.DefaultConfig.Readers, "number of reader goroutines")
	payload  = flag.Int64("payload", 0, "fixed stream payload size of each update")
	backend  = flag.String("stream_backend", load.DefaultConfig.StreamBackend, "stream backend, file or bolt")
	dir      = flag.String("stream_dir", "", "where to keep stream buffers (a scratch directory if empty)")

	// For advanced tests, use a config file. It overwrites the defaults, and
	// flags given explicitly overwrite it.
	cfgFile = flag.String("config_file", "", "path for JSON encoded configuration file")

	addr = flag.String("addr", "", "if set, serve prometheus metrics on this address while the load runs")
)

func main() {
	flag.Set("logtostderr", "true")

	// Parse the flags.
	flag.Parse()

	// Start with the defaults.
	cfg := load.DefaultConfig

	// Read config file.
	if *cfgFile != "" {
		f, err := os.Open(*cfgFile)
		if err != nil {
			log.Fatalf("failed to open config file %s: %s", *cfgFile, err)
		}
		dec := json.NewDecoder(f)
		if err := dec.Decode(&cfg); err != nil {
			log.Fatalf("failed to decode config file %s: %s", *cfgFile, err)
		}
		f.Close()
	}

	// Flags given on the command line win.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "duration":
			cfg.Duration = *duration
		case "nodes":
			cfg.Nodes = *nodes
		case "writers":
			cfg.Writers = *writers
		case "readers":
			cfg.Readers = *readers
		case "payload":
			cfg.PayloadSize = load.VariateConfig{Name: "Constant", Parameters: json.RawMessage(f.Value.String())}
		case "stream_backend":
			cfg.StreamBackend = *backend
		case "stream_dir":
			cfg.StreamDir = *dir
		}
	})

	if *addr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*addr, nil); err != nil {
				log.Errorf("metrics listener failed: %s", err)
			}
		}()
	}

	r, err := load.NewRunner(cfg)
	if err != nil {
		log.Fatalf("failed to set up load: %s", err)
	}
	rep, runerr := r.Run()
	if err := r.Close(); err != nil {
		log.Errorf("failed to close store: %s", err)
	}

	log.Infof("\n====== stats ======\n%s", rep)
	log.Infof("commit ops: %s", store.OpSummary("commit"))
	if runerr != nil {
		log.Errorf("load test failed...: %s", runerr)
		os.Exit(1)
	}
	log.Infof("load test passed...")
}
