// Package sqlite provides the public API for the embedded SQLite registry.
// It exposes the backend factory while keeping implementation details
// internal, so other programs can host a registry without the HTTP server.
package sqlite

import (
	"github.com/mesh-intelligence/riddler/internal/sqlite"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

// DatabaseFile is the rebuilt cache inside the data directory.
const DatabaseFile = sqlite.DatabaseFile

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	catalog := sqlite.NewBackend()
//	err := catalog.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: "/var/lib/riddler",
//	})
//	defer catalog.Detach()
//	reg, err := catalog.Registry()
func NewBackend() types.Catalog {
	return sqlite.NewBackend()
}
