package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/riddler/pkg/types"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, DialectPostgres, WithIDGenerator(func() string { return "new-id" })), mock
}

func TestPostgresUniqueViolationIsAlreadyExists(t *testing.T) {
	s, mock := newMockStore(t)
	desc := englishUS()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT dictionary_id FROM dictionaries WHERE fingerprint = $1")).
		WithArgs(desc.Metadata.Fingerprint()).
		WillReturnRows(sqlmock.NewRows([]string{"dictionary_id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT dictionary_id FROM dictionary_metadata WHERE (entry_key = $1 AND entry_value = $2)")).
		WillReturnRows(sqlmock.NewRows([]string{"dictionary_id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dictionaries (dictionary_id, fingerprint, created_at) VALUES ($1, $2, $3)")).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	_, err := s.CreateDictionary(context.Background(), desc)
	assert.ErrorIs(t, err, types.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetDictionaryMetadata(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM dictionaries WHERE dictionary_id = $1")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT entry_key, entry_value FROM dictionary_metadata WHERE dictionary_id = $1 ORDER BY ordinal")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"entry_key", "entry_value"}).
			AddRow("language", "en").
			AddRow("dialect", "us"))

	desc, err := s.GetDictionaryMetadata(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, types.Metadata{{Key: "language", Value: "en"}, {Key: "dialect", Value: "us"}}, desc.Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverErrorsAreWrapped(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM dictionaries WHERE dictionary_id = $1")).
		WillReturnError(boom)

	_, err := s.GetDictionaryMetadata(context.Background(), "d1")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, types.CodeInternal, types.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailedCommitIsReported(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM dictionaries WHERE dictionary_id = $1")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pronunciation_id FROM pronunciations WHERE dictionary_id = $1 AND word = $2")).
		WithArgs("d1", "hello").
		WillReturnRows(sqlmock.NewRows([]string{"pronunciation_id"}).AddRow("p1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pronunciation_variants (pronunciation_id, variant) VALUES ($1, $2) ON CONFLICT DO NOTHING")).
		WithArgs("p1", "HH AH L OW").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	_, err := s.AddPronunciations(context.Background(), "d1", "Hello", []string{"HH AH L OW"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "committing transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}
