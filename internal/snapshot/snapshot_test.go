package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/riddler/internal/sqlstore"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

func seededStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "riddler.db")+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlstore.Migrate(ctx, db, sqlstore.DialectSQLite))
	s := sqlstore.New(db, sqlstore.DialectSQLite)

	for _, lang := range []string{"en", "fr"} {
		dictID, err := s.CreateDictionary(ctx, types.DictionaryDescriptor{Metadata: types.Metadata{{Key: "language", Value: lang}}})
		require.NoError(t, err)
		_, err = s.CreateCorpus(ctx, dictID, types.CorpusDescriptor{
			Metadata:    types.Metadata{{Key: "name", Value: lang + "-read"}},
			CollectDate: time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC),
		})
		require.NoError(t, err)
	}
	return s
}

var snapshotTime = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func TestExportRead(t *testing.T) {
	s := seededStore(t)
	var buf bytes.Buffer
	stats, err := Export(context.Background(), s, &buf, snapshotTime)
	require.NoError(t, err)
	assert.Equal(t, Stats{Dictionaries: 2, Corpora: 2}, stats)

	snap, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, snap.Version)
	assert.True(t, snap.CreatedAt.Equal(snapshotTime))
	require.Len(t, snap.Dictionaries, 2)
	require.Len(t, snap.Corpora, 2)

	dicts, err := s.ListDictionaries(context.Background())
	require.NoError(t, err)
	for i, d := range dicts {
		assert.Equal(t, d.DictionaryID, snap.Dictionaries[i].DictionaryID)
		assert.True(t, d.Metadata.Equal(snap.Dictionaries[i].Metadata))
	}
	for _, c := range snap.Corpora {
		assert.True(t, c.CollectDate.Equal(time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC)))
	}
}

func compress(t *testing.T, lines ...string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write([]byte(strings.Join(lines, "\n")))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	return &buf
}

func TestReadRejectsBadArchives(t *testing.T) {
	tests := []struct {
		name  string
		input *bytes.Buffer
	}{
		{"not zstd", bytes.NewBufferString("plain text")},
		{"empty", compress(t)},
		{"no header", compress(t, `{"kind":"dictionary","dictionary":{"dictionary_id":"x"}}`)},
		{"future version", compress(t, `{"kind":"header","version":99}`)},
		{"repeated header", compress(t, `{"kind":"header","version":1}`, `{"kind":"header","version":1}`)},
		{"unknown kind", compress(t, `{"kind":"header","version":1}`, `{"kind":"item"}`)},
		{"empty corpus", compress(t, `{"kind":"header","version":1}`, `{"kind":"corpus"}`)},
		{"bad json", compress(t, `{"kind":"header","version":1}`, `{oops`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(tt.input)
			assert.ErrorIs(t, err, ErrBadArchive)
		})
	}
}

func TestName(t *testing.T) {
	assert.Equal(t, "riddler-20261019T080000Z.jsonl.zst", Name(snapshotTime))
}

func TestTakeAndLoadLocal(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "snapshots")
	sink, err := Open("file://"+dir, S3Config{})
	require.NoError(t, err)

	name, stats, err := Take(ctx, seededStore(t), sink, snapshotTime)
	require.NoError(t, err)
	assert.Equal(t, Name(snapshotTime), name)
	assert.Equal(t, 2, stats.Dictionaries)

	names, err := sink.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, names, "no temp files left behind")

	snap, err := Load(ctx, sink, name)
	require.NoError(t, err)
	assert.Len(t, snap.Dictionaries, 2)

	_, err = Load(ctx, sink, "missing.jsonl.zst")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalSinkListMissingDir(t *testing.T) {
	names, err := NewLocalSink(filepath.Join(t.TempDir(), "nope")).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	sink, err := Open(dir, S3Config{})
	require.NoError(t, err)
	assert.IsType(t, &LocalSink{}, sink)

	sink, err = Open("s3://archive/riddler", S3Config{Endpoint: "localhost:9000"})
	require.NoError(t, err)
	ms, ok := sink.(*MinioSink)
	require.True(t, ok)
	assert.Equal(t, "archive", ms.bucket)
	assert.Equal(t, "riddler/x.zst", ms.key("x.zst"))

	_, err = Open("s3:///nobucket", S3Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
	_, err = Open("s3://bucket", S3Config{})
	assert.Error(t, err)
	_, err = Open("gs://bucket", S3Config{})
	assert.Error(t, err)
}

func TestLocalSinkPutIsAtomic(t *testing.T) {
	dir := t.TempDir()
	sink := NewLocalSink(dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sink.Put(ctx, "a.zst", strings.NewReader("data"))
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
