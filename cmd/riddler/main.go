// Package main provides the riddler CLI and server.
package main

import "github.com/mesh-intelligence/riddler/internal/cli"

func main() {
	cli.Execute()
}
