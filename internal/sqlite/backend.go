// Package sqlite implements the SQLite storage backend for Riddler.
//
// SQLite is only the query engine. One JSONL file per table in DataDir is
// the source of truth: Attach rebuilds the database from those files, and
// every committed write is persisted back to them according to the
// configured sync strategy.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/riddler/internal/logging"
	"github.com/mesh-intelligence/riddler/internal/sqlstore"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

// DatabaseFile is the name of the rebuilt SQLite database inside DataDir.
const DatabaseFile = "riddler.db"

// Backend implements the Catalog interface using SQLite as the query engine
// and JSONL files as the source of truth.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	store    *sqlstore.Store
	logger   *slog.Logger

	// persistTable dumps one table to its JSONL file.
	persistTable func(name string) error

	// Sync strategy state
	syncStrategy  string        // effective sync strategy: immediate, on_close, batch
	batchSize     int           // number of writes before batch flush
	batchInterval time.Duration // time between batch flushes
	pendingTables []string      // tables waiting for a JSONL persist, in first-write order
	writeCount    int           // committed writes since the last flush
	batchTimer    *time.Timer   // timer for interval-based batch flush
	batchMu       sync.Mutex    // protects pendingTables, writeCount, batchTimer and persistTable
}

var _ types.Catalog = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{logger: logging.Discard()}
	for _, opt := range opts {
		opt(b)
	}
	b.persistTable = func(name string) error {
		return persistTableJSONL(b.db, b.config.DataDir, name)
	}
	return b
}

// Registry returns the attached registry.
// Returns ErrRegistryDetached if the backend is not attached.
func (b *Backend) Registry() (types.Registry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrRegistryDetached
	}
	return b.store, nil
}

// Store returns the attached store, for callers that need operations
// beyond the Registry interface.
func (b *Backend) Store() (*sqlstore.Store, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrRegistryDetached
	}
	return b.store, nil
}

// Attach initializes the backend with the given configuration.
// Creates DataDir if it does not exist, rebuilds the SQLite database from
// the JSONL files, and exposes the registry.
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
	if config.Backend != types.BackendSQLite {
		return fmt.Errorf("%w: %s", types.ErrBackendUnknown, config.Backend)
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	config.DataDir = dataDir

	// The database is a cache of the JSONL files; start from scratch.
	dbPath := filepath.Join(dataDir, DatabaseFile)
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := sqlstore.Migrate(ctx, db, sqlstore.DialectSQLite); err != nil {
		db.Close()
		return err
	}

	if err := initJSONLFiles(dataDir); err != nil {
		db.Close()
		return err
	}
	if err := loadAllJSONL(db, dataDir); err != nil {
		db.Close()
		return fmt.Errorf("load JSONL: %w", err)
	}

	b.db = db
	b.config = config

	b.syncStrategy = config.SQLiteConfig.GetSyncStrategy()
	b.batchSize = config.SQLiteConfig.GetBatchSize()
	b.batchInterval = time.Duration(config.SQLiteConfig.GetBatchInterval()) * time.Second
	b.pendingTables = nil
	b.writeCount = 0

	b.store = sqlstore.New(db, sqlstore.DialectSQLite, sqlstore.WithWriteHook(b.onWrite))
	b.attached = true

	if b.syncStrategy == types.SyncBatch && b.batchInterval > 0 {
		b.startBatchTimer()
	}
	return nil
}

// Detach releases all resources held by the backend. After Detach the
// registry returns ErrRegistryDetached. Detach is idempotent.
// Flushes all pending writes before closing, including tables an earlier
// flush failed to persist.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil // idempotent
	}

	// Waits for in-flight writes and rejects new ones.
	b.store.Close()

	b.stopBatchTimer()

	if err := b.flushPendingWritesLocked(); err != nil {
		return fmt.Errorf("flush pending writes: %w", err)
	}

	if err := b.db.Close(); err != nil {
		return err
	}
	b.db = nil
	b.store = nil
	b.attached = false
	return nil
}

// onWrite is the store's write hook. It queues the changed tables and
// flushes the queue when the sync strategy calls for it. A table that fails
// to persist stays queued for the next flush, so the hook never fails a
// write that has already committed.
func (b *Backend) onWrite(tables ...string) error {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	b.queueWriteLocked(tables...)

	if !b.shouldPersistImmediately() && !b.batchFullLocked() {
		return nil
	}
	if err := b.flushPendingWritesBatchLocked(); err != nil {
		b.logger.Warn("persist failed, will retry",
			"error", err, "pending", len(b.pendingTables))
	}
	return nil
}

// Sync strategy methods

// shouldPersistImmediately returns true if JSONL writes should happen immediately.
// Returns true for "immediate" strategy (default), false for "on_close" and "batch".
func (b *Backend) shouldPersistImmediately() bool {
	return b.syncStrategy == types.SyncImmediate || b.syncStrategy == ""
}

// queueWriteLocked counts one committed write and adds each table to the
// pending queue unless it is already there.
// The caller must hold b.batchMu lock.
func (b *Backend) queueWriteLocked(tables ...string) {
	b.writeCount++
	for _, name := range tables {
		queued := false
		for _, pending := range b.pendingTables {
			if pending == name {
				queued = true
				break
			}
		}
		if !queued {
			b.pendingTables = append(b.pendingTables, name)
		}
	}
}

// batchFullLocked reports whether the batch strategy has seen batchSize
// writes since the last flush.
// The caller must hold b.batchMu lock.
func (b *Backend) batchFullLocked() bool {
	return b.syncStrategy == types.SyncBatch && b.batchSize > 0 && b.writeCount >= b.batchSize
}

// pendingCount returns the number of tables waiting to be persisted.
func (b *Backend) pendingCount() int {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	return len(b.pendingTables)
}

// flushPendingWritesLocked flushes all pending writes to JSONL files.
// The caller must hold b.mu write lock.
func (b *Backend) flushPendingWritesLocked() error {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	return b.flushPendingWritesBatchLocked()
}

// flushPendingWritesBatchLocked persists every pending table and restarts
// the write count.
// The caller must hold b.batchMu lock.
func (b *Backend) flushPendingWritesBatchLocked() error {
	b.writeCount = 0
	for i, name := range b.pendingTables {
		if err := b.persistTable(name); err != nil {
			// Keep the failed table and everything after it for the next flush.
			b.pendingTables = b.pendingTables[i:]
			return fmt.Errorf("flush %s: %w", name, err)
		}
	}
	b.pendingTables = nil
	return nil
}

// startBatchTimer starts the batch interval timer for periodic flushes.
// The caller should ensure this is only called for batch strategy with positive interval.
func (b *Backend) startBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		return // already running
	}

	b.batchTimer = time.AfterFunc(b.batchInterval, func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if !b.attached {
			return
		}

		if err := b.flushPendingWritesLocked(); err != nil {
			b.logger.Warn("batch flush failed, will retry", "error", err)
		}

		b.batchMu.Lock()
		if b.batchTimer != nil && b.attached {
			b.batchTimer.Reset(b.batchInterval)
		}
		b.batchMu.Unlock()
	})
}

// stopBatchTimer stops the batch interval timer if running.
func (b *Backend) stopBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		b.batchTimer.Stop()
		b.batchTimer = nil
	}
}
