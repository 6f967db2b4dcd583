package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/riddler/pkg/types"
)

// newTestStore opens a migrated SQLite database in a temp dir.
func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "riddler.db")
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(context.Background(), db, DialectSQLite))
	return New(db, DialectSQLite, opts...)
}

func englishUS() types.DictionaryDescriptor {
	return types.DictionaryDescriptor{Metadata: types.Metadata{
		{Key: "language", Value: "en"},
		{Key: "dialect", Value: "us"},
		{Key: "source", Value: "cmudict"},
	}}
}

func TestDialectRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE b = ? AND c = ?"
	assert.Equal(t, q, DialectSQLite.rebind(q))
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", DialectPostgres.rebind(q))
	assert.Equal(t, "sqlite", DialectSQLite.String())
	assert.Equal(t, "postgres", DialectPostgres.String())
}

func TestMigrationVersion(t *testing.T) {
	s := newTestStore(t)
	v, err := MigrationVersion(context.Background(), s.db, DialectSQLite)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestEcho(t *testing.T) {
	s := newTestStore(t)
	for _, msg := range []string{"", "hello", "spaces and ünïcödé"} {
		got, err := s.Echo(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}
}

func TestCreateAndGetDictionary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateDictionary(ctx, englishUS())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetDictionary(ctx, englishUS())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	reordered := types.DictionaryDescriptor{Metadata: types.Metadata{
		{Key: "source", Value: "cmudict"},
		{Key: "language", Value: "en"},
		{Key: "dialect", Value: "us"},
	}}
	got, err = s.GetDictionary(ctx, reordered)
	require.NoError(t, err)
	assert.Equal(t, id, got, "lookup ignores entry order")

	desc, err := s.GetDictionaryMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, englishUS().Metadata, desc.Metadata, "metadata keeps creation order")
}

func TestCreateDictionaryDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateDictionary(ctx, englishUS())
	require.NoError(t, err)

	_, err = s.CreateDictionary(ctx, englishUS())
	require.ErrorIs(t, err, types.ErrAlreadyExists)
	assert.Contains(t, err.Error(), id)
}

func TestGetDictionaryBySubset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	us, err := s.CreateDictionary(ctx, englishUS())
	require.NoError(t, err)

	got, err := s.GetDictionary(ctx, types.DictionaryDescriptor{Metadata: types.Metadata{{Key: "language", Value: "en"}}})
	require.NoError(t, err)
	assert.Equal(t, us, got)

	got, err = s.GetDictionary(ctx, types.DictionaryDescriptor{Metadata: types.Metadata{
		{Key: "source", Value: "cmudict"},
		{Key: "dialect", Value: "us"},
	}})
	require.NoError(t, err)
	assert.Equal(t, us, got)

	// An exact match beats an older superset.
	narrow, err := s.CreateDictionary(ctx, types.DictionaryDescriptor{Metadata: types.Metadata{
		{Key: "language", Value: "en"},
		{Key: "dialect", Value: "uk"},
	}})
	require.NoError(t, err)
	wide, err := s.CreateDictionary(ctx, types.DictionaryDescriptor{Metadata: types.Metadata{
		{Key: "language", Value: "en"},
		{Key: "dialect", Value: "uk"},
		{Key: "source", Value: "beep"},
	}})
	require.NoError(t, err)
	require.NotEqual(t, narrow, wide)
	got, err = s.GetDictionary(ctx, types.DictionaryDescriptor{Metadata: types.Metadata{
		{Key: "dialect", Value: "uk"},
		{Key: "language", Value: "en"},
	}})
	require.NoError(t, err)
	assert.Equal(t, narrow, got)
}

func TestCreateDictionarySubsetIsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateDictionary(ctx, englishUS())
	require.NoError(t, err)

	_, err = s.CreateDictionary(ctx, types.DictionaryDescriptor{Metadata: types.Metadata{{Key: "language", Value: "en"}}})
	require.ErrorIs(t, err, types.ErrAlreadyExists)
	assert.Contains(t, err.Error(), id)

	dicts, err := s.ListDictionaries(ctx)
	require.NoError(t, err)
	assert.Len(t, dicts, 1)
}

func TestGetDictionaryErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.CreateDictionary(ctx, englishUS())
	require.NoError(t, err)

	t.Run("metadata never created", func(t *testing.T) {
		_, err := s.GetDictionary(ctx, types.DictionaryDescriptor{Metadata: types.Metadata{{Key: "language", Value: "fr"}}})
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("superset of stored metadata", func(t *testing.T) {
		md := append(englishUS().Metadata, types.Entry{Key: "edition", Value: "0.7b"})
		_, err := s.GetDictionary(ctx, types.DictionaryDescriptor{Metadata: md})
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("empty metadata", func(t *testing.T) {
		_, err := s.GetDictionary(ctx, types.DictionaryDescriptor{})
		assert.ErrorIs(t, err, types.ErrInvalidMetadata)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.GetDictionaryMetadata(ctx, "0190c4d2-0000-7000-8000-000000000000")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("blank id", func(t *testing.T) {
		_, err := s.GetDictionaryMetadata(ctx, " ")
		assert.ErrorIs(t, err, types.ErrInvalidID)
	})
}

func TestFindAndListDictionaries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	us, err := s.CreateDictionary(ctx, englishUS())
	require.NoError(t, err)
	uk, err := s.CreateDictionary(ctx, types.DictionaryDescriptor{Metadata: types.Metadata{
		{Key: "language", Value: "en"},
		{Key: "dialect", Value: "uk"},
	}})
	require.NoError(t, err)
	fr, err := s.CreateDictionary(ctx, types.DictionaryDescriptor{Metadata: types.Metadata{
		{Key: "language", Value: "fr"},
	}})
	require.NoError(t, err)

	ids, err := s.FindDictionaries(ctx, types.Metadata{{Key: "language", Value: "en"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{us, uk}, ids)

	ids, err = s.FindDictionaries(ctx, types.Metadata{{Key: "language", Value: "en"}, {Key: "dialect", Value: "uk"}})
	require.NoError(t, err)
	assert.Equal(t, []string{uk}, ids)

	ids, err = s.FindDictionaries(ctx, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{us, uk, fr}, ids)

	ids, err = s.FindDictionaries(ctx, types.Metadata{{Key: "language", Value: "de"}})
	require.NoError(t, err)
	assert.Empty(t, ids)

	dicts, err := s.ListDictionaries(ctx)
	require.NoError(t, err)
	require.Len(t, dicts, 3)
	for _, d := range dicts {
		assert.Equal(t, d.Metadata.Fingerprint(), d.Fingerprint)
		assert.False(t, d.CreatedAt.IsZero())
	}
}

func TestCorpusRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	dictID, err := s.CreateDictionary(ctx, englishUS())
	require.NoError(t, err)

	collected := time.Date(2023, 11, 5, 9, 30, 15, 123000000, time.FixedZone("EST", -5*3600))
	desc := types.CorpusDescriptor{
		Metadata:    types.Metadata{{Key: "name", Value: "an4"}, {Key: "speakers", Value: "74"}},
		CollectDate: collected,
	}

	id, err := s.CreateCorpus(ctx, dictID, desc)
	require.NoError(t, err)

	got, err := s.GetCorpusDescriptor(ctx, id)
	require.NoError(t, err)
	assert.True(t, desc.Equal(got), "got %+v", got)
	assert.True(t, collected.Equal(got.CollectDate))

	second, err := s.CreateCorpus(ctx, dictID, desc)
	require.NoError(t, err)
	assert.NotEqual(t, id, second, "corpora are not content-identified")

	corpora, err := s.ListCorpora(ctx, dictID)
	require.NoError(t, err)
	require.Len(t, corpora, 2)
	assert.Equal(t, dictID, corpora[0].DictionaryID)
	assert.True(t, desc.Equal(corpora[0].Descriptor()))
}

func TestCorpusErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateCorpus(ctx, "no-such-dictionary", types.CorpusDescriptor{CollectDate: time.Now()})
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = s.GetCorpusDescriptor(ctx, "no-such-corpus")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = s.ListCorpora(ctx, "no-such-dictionary")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPronunciations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	dictID, err := s.CreateDictionary(ctx, englishUS())
	require.NoError(t, err)

	id, err := s.AddPronunciations(ctx, dictID, "Tomato", []string{"T AH M EY T OW"})
	require.NoError(t, err)

	again, err := s.AddPronunciations(ctx, dictID, "tomato", []string{"T AH M AA T OW", "T AH M EY T OW"})
	require.NoError(t, err)
	assert.Equal(t, id, again, "variants merge into one record")

	p, err := s.Pronunciation(ctx, dictID, "TOMATO")
	require.NoError(t, err)
	assert.Equal(t, "tomato", p.Word)
	assert.Equal(t, []string{"T AH M AA T OW", "T AH M EY T OW"}, p.Variants)

	has, err := s.HasPronunciation(ctx, dictID, "ToMaTo")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasPronunciation(ctx, dictID, "potato")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = s.AddPronunciations(ctx, dictID, "  ", nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = s.HasPronunciation(ctx, "unknown", "tomato")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestWriteHookReceivesChangedTables(t *testing.T) {
	ctx := context.Background()
	var calls [][]string
	s := newTestStore(t, WithWriteHook(func(tables ...string) error {
		calls = append(calls, tables)
		return nil
	}))

	dictID, err := s.CreateDictionary(ctx, englishUS())
	require.NoError(t, err)
	_, err = s.CreateCorpus(ctx, dictID, types.CorpusDescriptor{CollectDate: time.Now()})
	require.NoError(t, err)

	// Failed writes do not reach the hook.
	_, err = s.CreateDictionary(ctx, englishUS())
	require.Error(t, err)

	require.Len(t, calls, 2)
	assert.Equal(t, []string{DictionariesTable, DictionaryMetadataTable}, calls[0])
	assert.Equal(t, []string{CorporaTable, CorpusMetadataTable}, calls[1])
}

func TestFailedWriteHookKeepsCommittedID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithWriteHook(func(...string) error { return errors.New("disk") }))

	dictID, err := s.CreateDictionary(ctx, englishUS())
	require.ErrorIs(t, err, ErrNotPersisted)
	assert.Contains(t, err.Error(), "disk")
	require.NotEmpty(t, dictID)

	got, err := s.GetDictionary(ctx, englishUS())
	require.NoError(t, err)
	assert.Equal(t, dictID, got)

	// Retrying names the committed dictionary.
	_, err = s.CreateDictionary(ctx, englishUS())
	require.ErrorIs(t, err, types.ErrAlreadyExists)
	assert.Contains(t, err.Error(), dictID)

	corpusID, err := s.CreateCorpus(ctx, dictID, types.CorpusDescriptor{CollectDate: time.Now()})
	assert.ErrorIs(t, err, ErrNotPersisted)
	assert.NotEmpty(t, corpusID)

	pronID, err := s.AddPronunciations(ctx, dictID, "tomato", []string{"t ah m ey t ow"})
	assert.ErrorIs(t, err, ErrNotPersisted)
	assert.NotEmpty(t, pronID)

	item, err := s.CreateItem(ctx, corpusID)
	assert.ErrorIs(t, err, ErrNotPersisted)
	assert.NotEmpty(t, item.ItemID)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Close()

	_, err := s.Echo(ctx, "x")
	assert.ErrorIs(t, err, types.ErrRegistryDetached)
	_, err = s.CreateDictionary(ctx, englishUS())
	assert.ErrorIs(t, err, types.ErrRegistryDetached)
	_, err = s.ListDictionaries(ctx)
	assert.ErrorIs(t, err, types.ErrRegistryDetached)
}

func TestDeterministicIDsAndClock(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	n := 0
	s := newTestStore(t,
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() string { n++; return "id-" + string(rune('0'+n)) }),
	)

	id, err := s.CreateDictionary(ctx, englishUS())
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)

	dicts, err := s.ListDictionaries(ctx)
	require.NoError(t, err)
	require.Len(t, dicts, 1)
	assert.Equal(t, fixed, dicts[0].CreatedAt)
}
