package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/resilience"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	retry := resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return NewPostgres(postgres.Wrap(db), retry), mock
}

func TestLoadForwardIndexesSanitizes(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"document_id", "tokens"}).
		AddRow("D1", []byte(`{"cat":1,"prototype":2}`)).
		AddRow("D2", []byte(`not json`)).
		AddRow("D3", []byte(`{"dog":3}`))
	mock.ExpectQuery(regexp.QuoteMeta(selectForwardIndexes)).WillReturnRows(rows)

	got, err := s.LoadForwardIndexes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]index.ForwardIndex{
		"D1": {"cat": 1},
		"D3": {"dog": 3},
	}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadForwardIndexNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectForwardIndex)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.LoadForwardIndex(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadForwardIndexCorruptRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectForwardIndex)).
		WithArgs("D1").
		WillReturnRows(sqlmock.NewRows([]string{"tokens"}).AddRow([]byte(`{"cat":`)))

	_, err := s.LoadForwardIndex(context.Background(), "D1")
	assert.ErrorIs(t, err, apperrors.ErrInternal)
	assert.NotErrorIs(t, err, apperrors.ErrStoreUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveForwardIndexRetriesTransientErrors(t *testing.T) {
	s, mock := newMockStore(t)
	query := regexp.QuoteMeta(upsertForwardIndex)
	mock.ExpectExec(query).
		WithArgs("D1", []byte(`{"cat":2}`)).
		WillReturnError(&pq.Error{Code: "08006"})
	mock.ExpectExec(query).
		WithArgs("D1", []byte(`{"cat":2}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.SaveForwardIndex(context.Background(), "D1", index.ForwardIndex{"cat": 2})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveForwardIndexPermanentError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(upsertForwardIndex)).
		WillReturnError(&pq.Error{Code: "23505"})

	err := s.SaveForwardIndex(context.Background(), "D1", index.ForwardIndex{"cat": 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSimilarityRecordRoundTrip(t *testing.T) {
	s, mock := newMockStore(t)
	computed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := similarity.Record{
		DocumentID: "D1",
		Peers:      []similarity.Suggestion{{DocumentID: "D2", Score: 0.5}},
		ComputedAt: computed,
	}
	mock.ExpectExec(regexp.QuoteMeta(upsertSimilarityRecord)).
		WithArgs("D1", []byte(`[{"document_id":"D2","score":0.5}]`), computed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SaveSimilarityRecord(context.Background(), rec))

	mock.ExpectQuery(regexp.QuoteMeta(selectSimilarityRecord)).
		WithArgs("D1").
		WillReturnRows(sqlmock.NewRows([]string{"peers", "computed_at"}).
			AddRow([]byte(`[{"document_id":"D2","score":0.5}]`), computed))
	got, err := s.LoadSimilarityRecord(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSimilarityRecords(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(selectSimilarityRecords)).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "peers", "computed_at"}).
			AddRow("D1", []byte(`[]`), now).
			AddRow("D2", []byte(`[{"document_id":"D1","score":0.25}]`), now))

	recs, err := s.LoadSimilarityRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Empty(t, recs[0].Peers)
	assert.Equal(t, 0.25, recs[1].Peers[0].Score)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAndMigrate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(deleteForwardIndex)).WithArgs("D1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(deleteSimilarityRecord)).WithArgs("D1").WillReturnResult(sqlmock.NewResult(0, 1))
	for _, stmt := range Schema {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, s.DeleteForwardIndex(context.Background(), "D1"))
	require.NoError(t, s.DeleteSimilarityRecord(context.Background(), "D1"))
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(errors.New("connection reset")))
	assert.True(t, IsTransient(&pq.Error{Code: "40001"}))
	assert.False(t, IsTransient(&pq.Error{Code: "23505"}))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveForwardIndex(ctx, "D1", index.ForwardIndex{"a": 1}))
	fi, err := m.LoadForwardIndex(ctx, "D1")
	require.NoError(t, err)
	fi["b"] = 2
	all, err := m.LoadForwardIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]index.ForwardIndex{"D1": {"a": 1}}, all)

	require.NoError(t, m.DeleteForwardIndex(ctx, "D1"))
	_, err = m.LoadForwardIndex(ctx, "D1")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	require.NoError(t, m.SaveSimilarityRecord(ctx, similarity.Record{DocumentID: "B"}))
	require.NoError(t, m.SaveSimilarityRecord(ctx, similarity.Record{DocumentID: "A"}))
	recs, err := m.LoadSimilarityRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", recs[0].DocumentID)
	require.NoError(t, m.DeleteSimilarityRecord(ctx, "A"))
	_, err = m.LoadSimilarityRecord(ctx, "A")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}
