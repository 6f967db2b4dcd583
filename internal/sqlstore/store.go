// Package sqlstore implements the Riddler registry over database/sql. The
// same queries serve SQLite and PostgreSQL; statements are written with ?
// placeholders and rebound for the target dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mesh-intelligence/riddler/pkg/types"
)

// Dialect selects placeholder syntax, column types, and migrations.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// WriteHook runs after a write transaction commits, with the names of the
// tables it changed.
type WriteHook func(tables ...string) error

// ErrNotPersisted wraps a write hook failure. The transaction has already
// committed, so creating operations return the new id alongside it.
var ErrNotPersisted = errors.New("write committed but not persisted")

// Option configures a Store.
type Option func(*Store)

// WithWriteHook sets the hook called after each committed write.
func WithWriteHook(hook WriteHook) Option {
	return func(s *Store) { s.onWrite = hook }
}

// WithClock overrides time.Now for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides UUID v7 generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Store implements types.Registry. Reads share a read lock; writes hold the
// write lock for the transaction and the write hook.
type Store struct {
	mu      sync.RWMutex
	db      *sql.DB
	dialect Dialect
	closed  bool
	onWrite WriteHook
	now     func() time.Time
	newID   func() string
}

var _ types.Registry = (*Store)(nil)

// New returns a Store over db. The schema must already be migrated.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		now:     time.Now,
		newID:   generateUUID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close detaches the store. Later calls fail with ErrRegistryDetached. The
// database handle belongs to the caller and stays open.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Echo returns msg unchanged.
func (s *Store) Echo(ctx context.Context, msg string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", types.ErrRegistryDetached
	}
	return msg, nil
}

// generateUUID generates a new UUID v7 for entity IDs.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 generation fails
		return uuid.New().String()
	}
	return id.String()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// querier rebinds every statement for its dialect.
type querier struct {
	ex      execer
	dialect Dialect
}

func (q querier) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.ex.ExecContext(ctx, q.dialect.rebind(query), args...)
}

func (q querier) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.ex.QueryContext(ctx, q.dialect.rebind(query), args...)
}

func (q querier) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.ex.QueryRowContext(ctx, q.dialect.rebind(query), args...)
}

// read runs fn under the read lock.
func (s *Store) read(ctx context.Context, fn func(q querier) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.ErrRegistryDetached
	}
	return fn(querier{ex: s.db, dialect: s.dialect})
}

// write runs fn in a transaction under the write lock. fn returns the
// tables it changed; they are passed to the write hook after commit.
func (s *Store) write(ctx context.Context, fn func(q querier) ([]string, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrRegistryDetached
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	changed, err := fn(querier{ex: tx, dialect: s.dialect})
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	if s.onWrite != nil && len(changed) > 0 {
		if err := s.onWrite(changed...); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNotPersisted, strings.Join(changed, ", "), err)
		}
	}
	return nil
}

// committed reports whether a write error left the transaction committed.
func committed(err error) bool {
	return err == nil || errors.Is(err, ErrNotPersisted)
}

// isUniqueViolation reports whether err is a unique-constraint failure from
// either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Timestamps are stored as RFC 3339 text in UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// requireID rejects blank identities before they reach a query.
func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s id must not be empty", types.ErrInvalidID, kind)
	}
	return nil
}

// exists reports whether a row with the given key exists in table.
func exists(ctx context.Context, q querier, table, column, id string) (bool, error) {
	var one int
	err := q.queryRow(ctx, "SELECT 1 FROM "+table+" WHERE "+column+" = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking %s %s: %w", table, id, err)
	}
	return true, nil
}

// insertMetadata writes entries in creation order.
func insertMetadata(ctx context.Context, q querier, table, ownerColumn, ownerID string, md types.Metadata) error {
	stmt := "INSERT INTO " + table + " (" + ownerColumn + ", ordinal, entry_key, entry_value) VALUES (?, ?, ?, ?)"
	for i, e := range md {
		if _, err := q.exec(ctx, stmt, ownerID, i, e.Key, e.Value); err != nil {
			return fmt.Errorf("inserting %s entry %q: %w", table, e.Key, err)
		}
	}
	return nil
}

// loadMetadata returns entries for one owner in creation order.
func loadMetadata(ctx context.Context, q querier, table, ownerColumn, ownerID string) (types.Metadata, error) {
	rows, err := q.query(ctx,
		"SELECT entry_key, entry_value FROM "+table+" WHERE "+ownerColumn+" = ? ORDER BY ordinal", ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	md := types.Metadata{}
	for rows.Next() {
		var e types.Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		md = append(md, e)
	}
	return md, rows.Err()
}

// loadAllMetadata returns every owner's entries keyed by owner id.
func loadAllMetadata(ctx context.Context, q querier, table, ownerColumn string) (map[string]types.Metadata, error) {
	rows, err := q.query(ctx,
		"SELECT "+ownerColumn+", entry_key, entry_value FROM "+table+" ORDER BY "+ownerColumn+", ordinal")
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]types.Metadata)
	for rows.Next() {
		var owner string
		var e types.Entry
		if err := rows.Scan(&owner, &e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		out[owner] = append(out[owner], e)
	}
	return out, rows.Err()
}
