package publisher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/postgres"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (f *fakeProducer) Publish(_ context.Context, event kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func newTestPublisher(t *testing.T) (*Publisher, sqlmock.Sqlmock, *fakeProducer) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	prod := &fakeProducer{}
	p := New(postgres.Wrap(db), prod)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p, mock, prod
}

func hashOf(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
}

func TestSubmitStoresAndPublishes(t *testing.T) {
	p, mock, prod := newTestPublisher(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(upsertContent)).
		WithArgs("D1", "Cats", "the cat sat", hashOf("the cat sat")).
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}).AddRow("D1"))
	mock.ExpectCommit()

	resp, err := p.Submit(context.Background(), &ingestion.SubmitRequest{
		DocumentID: "D1", Title: "Cats", Text: "the cat sat",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, resp.Status)
	require.Len(t, prod.events, 1)
	assert.Equal(t, "D1", prod.events[0].Key)
	assert.Equal(t, ingestion.IngestEvent{
		DocumentID:  "D1",
		Action:      ingestion.ActionIndex,
		RequestedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, prod.events[0].Value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitUnchangedSkipsPublish(t *testing.T) {
	p, mock, prod := newTestPublisher(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(upsertContent)).
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}))
	mock.ExpectCommit()

	resp, err := p.Submit(context.Background(), &ingestion.SubmitRequest{DocumentID: "D1", Text: "same"})
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, resp.Status)
	assert.Empty(t, prod.events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitPublishFailureResetsHash(t *testing.T) {
	p, mock, prod := newTestPublisher(t)
	prod.err = errors.New("broker down")
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(upsertContent)).
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}).AddRow("D1"))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta(resetContentHash)).
		WithArgs("D1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := p.Submit(context.Background(), &ingestion.SubmitRequest{DocumentID: "D1", Text: "text"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.Equal(t, 503, apperrors.HTTPStatusCode(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitDatabaseFailure(t *testing.T) {
	p, mock, prod := newTestPublisher(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(upsertContent)).WillReturnError(errors.New("conn refused"))
	mock.ExpectRollback()

	_, err := p.Submit(context.Background(), &ingestion.SubmitRequest{DocumentID: "D1", Text: "text"})
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.Empty(t, prod.events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdraw(t *testing.T) {
	p, mock, prod := newTestPublisher(t)
	mock.ExpectExec(regexp.QuoteMeta(deleteContent)).
		WithArgs("D1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(deleteContent)).
		WithArgs("D9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	resp, err := p.Withdraw(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, StatusRemoving, resp.Status)
	require.Len(t, prod.events, 1)
	assert.Equal(t, ingestion.ActionRemove, prod.events[0].Value.(ingestion.IngestEvent).Action)

	_, err = p.Withdraw(context.Background(), "D9")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	assert.Len(t, prod.events, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
