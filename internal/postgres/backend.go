// Package postgres implements the PostgreSQL storage backend for Riddler.
// Unlike the SQLite backend, the database itself is the source of truth.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mesh-intelligence/riddler/internal/sqlstore"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

// connectTimeout bounds the initial ping and migrations.
const connectTimeout = 30 * time.Second

// Backend implements the Catalog interface over pgx.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	db       *sql.DB
	store    *sqlstore.Store
}

var _ types.Catalog = (*Backend)(nil)

// NewBackend creates a detached backend.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach connects to config.DSN and migrates the schema.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.Backend != types.BackendPostgres {
		return fmt.Errorf("%w: %s", types.ErrBackendUnknown, config.Backend)
	}

	db, err := sql.Open("pgx", config.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("connecting to database: %w", err)
	}
	if err := sqlstore.Migrate(ctx, db, sqlstore.DialectPostgres); err != nil {
		db.Close()
		return err
	}

	b.db = db
	b.store = sqlstore.New(db, sqlstore.DialectPostgres)
	b.attached = true
	return nil
}

// Detach closes the connection pool. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.store.Close()
	err := b.db.Close()
	b.db = nil
	b.store = nil
	b.attached = false
	return err
}

// Registry returns the attached registry, or ErrRegistryDetached.
func (b *Backend) Registry() (types.Registry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrRegistryDetached
	}
	return b.store, nil
}
