// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package testutil gives tests that write stream buffers or bolt files a
// scratch area. Each test takes a fresh directory from MkTempDir; all of them
// live under one per-process root that TestMain removes when the package
// passes and keeps, for inspection, when it fails.
//
// Wire it up from main_test.go:
//
//	func TestMain(m *testing.M) {
//		testutil.TestMain(m)
//	}
package testutil

import (
	"flag"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"

	log "github.com/golang/glog"
)

var (
	rootOnce sync.Once
	root     string
)

// TempDir returns the scratch root of this test binary, creating it on first
// use. It is placed under $TMPDIR if set, else under the working directory.
func TempDir() string {
	rootOnce.Do(func() {
		base := os.Getenv("TMPDIR")
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				log.Fatalf("could not get the current dir: %s", err)
			}
			base = wd
		}
		dir, err := ioutil.TempDir(base, filepath.Base(os.Args[0])+".")
		if err != nil {
			log.Fatalf("couldn't create scratch root in %s: %s", base, err)
		}
		root = dir
	})
	return root
}

// MkTempDir creates a fresh directory under TempDir for one test.
func MkTempDir(t testing.TB, prefix string) string {
	dir, err := ioutil.TempDir(TempDir(), prefix)
	if err != nil {
		t.Fatalf("couldn't create temp dir: %s", err)
	}
	return dir
}

// TestMain runs the tests of a package and cleans up the scratch root
// unless something failed.
func TestMain(m *testing.M) {
	flag.Parse()
	ret := m.Run()
	if root != "" {
		if ret == 0 {
			os.RemoveAll(root)
		} else {
			log.Infof("tests failed, leaving scratch files in %s", root)
		}
	}
	log.Flush()
	os.Exit(ret)
}
