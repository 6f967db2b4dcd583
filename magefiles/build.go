//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the riddler project using Mage.
//
// Usage:
//
//	mage build             Compile riddler binary to bin/
//	mage test:all          Run all tests (unit + integration)
//	mage test:unit         Run only unit tests (exclude integration)
//	mage test:integration  Run only integration tests (builds first)
//	mage test:contract     Run the contract checks against RIDDLER_URL
//	mage lint              Run golangci-lint
//	mage serve             Build and run a local server
//	mage clean             Remove build artifacts
//	mage install           Install riddler to GOPATH/bin
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "riddler"
	binaryDir  = "bin"
	cmdDir     = "./cmd/riddler"
)

func binaryPath() string {
	return filepath.Join(binaryDir, binaryName)
}

// Build compiles the riddler binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", binaryPath(), cmdDir)
}

// Serve builds the binary and runs the server with the local config.
func Serve() error {
	mg.Deps(Build)
	return sh.RunV(binaryPath(), "serve", "--log-level", "info")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, binaryPath())
}
