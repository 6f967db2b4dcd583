// Package riddler holds build metadata for the riddler module.
package riddler

// Version is the module version, overridden at build time with
// -ldflags "-X github.com/mesh-intelligence/riddler/pkg/riddler.Version=...".
var Version = "0.1.0"

// ModulePath is the Go module path.
const ModulePath = "github.com/mesh-intelligence/riddler"
