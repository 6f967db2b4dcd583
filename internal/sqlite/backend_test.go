// Tests for the SQLite backend lifecycle and sync strategies.
package sqlite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mesh-intelligence/riddler/internal/sqlstore"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

func attachBackend(t *testing.T, dir string, sc types.SQLiteConfig) *Backend {
	t.Helper()
	b := NewBackend()
	config := types.Config{
		Backend:      types.BackendSQLite,
		DataDir:      dir,
		SQLiteConfig: sc,
	}
	if err := b.Attach(config); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	return b
}

func registry(t *testing.T, b *Backend) types.Registry {
	t.Helper()
	reg, err := b.Registry()
	if err != nil {
		t.Fatalf("Registry failed: %v", err)
	}
	return reg
}

var testDictionary = types.DictionaryDescriptor{Metadata: types.Metadata{
	{Key: "language", Value: "en"},
	{Key: "dialect", Value: "us"},
}}

func TestBackend_Attach(t *testing.T) {
	tmpDir := t.TempDir()
	b := attachBackend(t, tmpDir, types.SQLiteConfig{})
	defer b.Detach()

	dbPath := filepath.Join(tmpDir, DatabaseFile)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("%s not created", DatabaseFile)
	}

	err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: tmpDir})
	if !errors.Is(err, types.ErrAlreadyAttached) {
		t.Errorf("expected ErrAlreadyAttached, got %v", err)
	}
}

func TestBackend_AttachRejectsBadConfig(t *testing.T) {
	b := NewBackend()

	if err := b.Attach(types.Config{}); !errors.Is(err, types.ErrBackendEmpty) {
		t.Errorf("expected ErrBackendEmpty, got %v", err)
	}
	err := b.Attach(types.Config{Backend: types.BackendPostgres, DSN: "postgres://x"})
	if !errors.Is(err, types.ErrBackendUnknown) {
		t.Errorf("expected ErrBackendUnknown for postgres config, got %v", err)
	}
}

func TestBackend_Detach(t *testing.T) {
	b := attachBackend(t, t.TempDir(), types.SQLiteConfig{})
	reg := registry(t, b)

	if err := b.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if err := b.Detach(); err != nil {
		t.Errorf("second Detach should not error, got %v", err)
	}

	if _, err := b.Registry(); !errors.Is(err, types.ErrRegistryDetached) {
		t.Errorf("expected ErrRegistryDetached, got %v", err)
	}
	// A registry obtained before Detach stops working too.
	if _, err := reg.Echo(context.Background(), "x"); !errors.Is(err, types.ErrRegistryDetached) {
		t.Errorf("expected ErrRegistryDetached from stale registry, got %v", err)
	}
}

func TestJSONLFilesCreatedOnAttach(t *testing.T) {
	tmpDir := t.TempDir()
	b := attachBackend(t, tmpDir, types.SQLiteConfig{})
	defer b.Detach()

	for _, spec := range sqlstore.Tables {
		path := filepath.Join(tmpDir, jsonlFile(spec.Name))
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("expected %s to be created: %v", path, err)
			continue
		}
		if info.Size() != 0 {
			t.Errorf("expected %s to be empty, got %d bytes", path, info.Size())
		}
	}
}

func TestRoundTripAcrossAttach(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	b := attachBackend(t, tmpDir, types.SQLiteConfig{})
	reg := registry(t, b)

	dictID, err := reg.CreateDictionary(ctx, testDictionary)
	if err != nil {
		t.Fatalf("CreateDictionary failed: %v", err)
	}
	if _, err := reg.AddPronunciations(ctx, dictID, "hello", []string{"HH AH L OW"}); err != nil {
		t.Fatalf("AddPronunciations failed: %v", err)
	}
	collected := time.Date(2022, 6, 1, 8, 0, 0, 0, time.UTC)
	corpus := types.CorpusDescriptor{Metadata: types.Metadata{{Key: "name", Value: "an4"}}, CollectDate: collected}
	corpusID, err := reg.CreateCorpus(ctx, dictID, corpus)
	if err != nil {
		t.Fatalf("CreateCorpus failed: %v", err)
	}
	audio := types.AudioDescriptor{SamplesPerSecond: 8000, ChannelCount: 1, Encoding: types.EncodingPCMS8, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	item, err := reg.CreateItemWithAudioAndText(ctx, corpusID, audio, types.TextDescriptor{Words: []string{"hello"}})
	if err != nil {
		t.Fatalf("CreateItemWithAudioAndText failed: %v", err)
	}

	if err := b.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}

	b2 := attachBackend(t, tmpDir, types.SQLiteConfig{})
	defer b2.Detach()
	reg = registry(t, b2)

	got, err := reg.GetDictionary(ctx, testDictionary)
	if err != nil || got != dictID {
		t.Fatalf("GetDictionary after reattach = %q, %v; want %q", got, err, dictID)
	}
	desc, err := reg.GetCorpusDescriptor(ctx, corpusID)
	if err != nil {
		t.Fatalf("GetCorpusDescriptor failed: %v", err)
	}
	if !desc.Equal(corpus) {
		t.Errorf("corpus descriptor changed: got %+v, want %+v", desc, corpus)
	}
	has, err := reg.HasPronunciation(ctx, dictID, "HELLO")
	if err != nil || !has {
		t.Errorf("HasPronunciation after reattach = %v, %v", has, err)
	}
	detail, err := reg.GetItem(ctx, item.ItemID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if len(detail.Audio) != 1 || string(detail.Audio[0].Data) != string(audio.Data) {
		t.Errorf("audio data not preserved: %+v", detail.Audio)
	}
	if len(detail.AudioRegions) != 1 || detail.AudioRegions[0].TextRegionID == nil {
		t.Errorf("audio region link not preserved: %+v", detail.AudioRegions)
	}
}

func TestSyncStrategy_ImmediateDefault(t *testing.T) {
	tmpDir := t.TempDir()
	b := attachBackend(t, tmpDir, types.SQLiteConfig{})
	defer b.Detach()

	if b.syncStrategy != types.SyncImmediate {
		t.Errorf("Default sync strategy should be 'immediate', got %q", b.syncStrategy)
	}

	if _, err := registry(t, b).CreateDictionary(context.Background(), testDictionary); err != nil {
		t.Fatalf("CreateDictionary failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, jsonlFile(sqlstore.DictionariesTable)))
	if err != nil {
		t.Fatalf("Read dictionaries.jsonl failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("dictionaries.jsonl should contain data with immediate sync strategy")
	}
}

func TestSyncStrategy_OnClose_DefersWrites(t *testing.T) {
	tmpDir := t.TempDir()
	b := attachBackend(t, tmpDir, types.SQLiteConfig{SyncStrategy: types.SyncOnClose})

	if _, err := registry(t, b).CreateDictionary(context.Background(), testDictionary); err != nil {
		t.Fatalf("CreateDictionary failed: %v", err)
	}

	path := filepath.Join(tmpDir, jsonlFile(sqlstore.DictionariesTable))
	data, _ := os.ReadFile(path)
	if len(data) != 0 {
		t.Error("dictionaries.jsonl should be empty before Detach with on_close strategy")
	}
	if n := b.pendingCount(); n != 2 {
		t.Errorf("expected 2 pending tables, got %d", n)
	}

	if err := b.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	data, _ = os.ReadFile(path)
	if len(data) == 0 {
		t.Error("dictionaries.jsonl should contain data after Detach")
	}
}

func TestSyncStrategy_Batch_FlushAtThreshold(t *testing.T) {
	tmpDir := t.TempDir()
	b := attachBackend(t, tmpDir, types.SQLiteConfig{
		SyncStrategy:  types.SyncBatch,
		BatchSize:     3,
		BatchInterval: 3600,
	})
	defer b.Detach()
	reg := registry(t, b)
	ctx := context.Background()
	path := filepath.Join(tmpDir, jsonlFile(sqlstore.DictionariesTable))

	// Every write touches the same two tables; the threshold counts writes.
	for i := 0; i < 20; i++ {
		desc := types.DictionaryDescriptor{Metadata: types.Metadata{{Key: "language", Value: fmt.Sprintf("lang-%02d", i)}}}
		if _, err := reg.CreateDictionary(ctx, desc); err != nil {
			t.Fatalf("CreateDictionary %d failed: %v", i, err)
		}

		lines := countLines(t, path)
		if want := (i + 1) / 3 * 3; lines != want {
			t.Fatalf("after %d writes dictionaries.jsonl has %d lines, want %d", i+1, lines, want)
		}
	}

	if n := b.pendingCount(); n != 2 {
		t.Errorf("expected 2 pending tables after the last partial batch, got %d", n)
	}
	if err := b.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if lines := countLines(t, path); lines != 20 {
		t.Errorf("expected 20 dictionaries after Detach, got %d", lines)
	}
}

func TestSyncStrategy_ImmediateRetriesFailedPersist(t *testing.T) {
	tmpDir := t.TempDir()
	var logs syncBuffer
	b := NewBackend(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	if err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: tmpDir}); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer b.Detach()
	reg := registry(t, b)
	ctx := context.Background()
	path := filepath.Join(tmpDir, jsonlFile(sqlstore.DictionariesTable))

	persist := setPersist(b, func(string) error { return errors.New("disk") })

	dictID, err := reg.CreateDictionary(ctx, testDictionary)
	if err != nil {
		t.Fatalf("CreateDictionary should succeed once committed, got %v", err)
	}
	if dictID == "" {
		t.Fatal("CreateDictionary returned an empty id")
	}
	if n := b.pendingCount(); n != 2 {
		t.Errorf("expected 2 tables queued for retry, got %d", n)
	}
	if !strings.Contains(logs.String(), "disk") {
		t.Errorf("persist failure not logged: %q", logs.String())
	}
	if lines := countLines(t, path); lines != 0 {
		t.Errorf("expected no persisted dictionaries while persisting fails, got %d", lines)
	}

	// A retry names the committed dictionary.
	_, err = reg.CreateDictionary(ctx, testDictionary)
	if !errors.Is(err, types.ErrAlreadyExists) || !strings.Contains(err.Error(), dictID) {
		t.Errorf("expected ErrAlreadyExists naming %s, got %v", dictID, err)
	}

	setPersist(b, persist)
	if _, err := reg.CreateCorpus(ctx, dictID, types.CorpusDescriptor{CollectDate: time.Now()}); err != nil {
		t.Fatalf("CreateCorpus failed: %v", err)
	}
	if n := b.pendingCount(); n != 0 {
		t.Errorf("expected the queue to drain on the next write, got %d pending", n)
	}
	if lines := countLines(t, path); lines != 1 {
		t.Errorf("expected the queued dictionary to be persisted, got %d lines", lines)
	}
}

func TestSyncStrategy_Batch_TimerLogsFlushFailure(t *testing.T) {
	tmpDir := t.TempDir()
	var logs syncBuffer
	b := NewBackend(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	config := types.Config{
		Backend: types.BackendSQLite,
		DataDir: tmpDir,
		SQLiteConfig: types.SQLiteConfig{
			SyncStrategy:  types.SyncBatch,
			BatchSize:     1000,
			BatchInterval: 1,
		},
	}
	if err := b.Attach(config); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	persist := setPersist(b, func(string) error { return errors.New("disk") })

	if _, err := registry(t, b).CreateDictionary(context.Background(), testDictionary); err != nil {
		t.Fatalf("CreateDictionary failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !strings.Contains(logs.String(), "batch flush failed") {
		time.Sleep(50 * time.Millisecond)
	}
	if !strings.Contains(logs.String(), "batch flush failed") {
		t.Fatalf("batch timer did not log the flush failure: %q", logs.String())
	}
	if n := b.pendingCount(); n != 2 {
		t.Errorf("expected failed tables to stay queued, got %d", n)
	}

	setPersist(b, persist)
	if err := b.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if lines := countLines(t, filepath.Join(tmpDir, jsonlFile(sqlstore.DictionariesTable))); lines != 1 {
		t.Errorf("expected Detach to persist the queued dictionary, got %d lines", lines)
	}
}

// setPersist swaps the table persister and returns the previous one.
func setPersist(b *Backend, fn func(string) error) func(string) error {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	prev := b.persistTable
	b.persistTable = fn
	return prev
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return bytes.Count(data, []byte("\n"))
}

// syncBuffer is a bytes.Buffer safe for the batch timer goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSyncStrategy_Batch_FlushOnInterval(t *testing.T) {
	tmpDir := t.TempDir()
	b := attachBackend(t, tmpDir, types.SQLiteConfig{
		SyncStrategy:  types.SyncBatch,
		BatchSize:     1000,
		BatchInterval: 1,
	})
	defer b.Detach()

	if _, err := registry(t, b).CreateDictionary(context.Background(), testDictionary); err != nil {
		t.Fatalf("CreateDictionary failed: %v", err)
	}

	path := filepath.Join(tmpDir, jsonlFile(sqlstore.DictionariesTable))
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if data, _ := os.ReadFile(path); len(data) > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("dictionaries.jsonl was not flushed by the batch timer")
}
