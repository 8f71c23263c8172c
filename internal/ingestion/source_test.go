package ingestion

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/postgres"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresSource(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	src := NewPostgresSource(postgres.Wrap(db))
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(selectContent)).WithArgs("D1").
		WillReturnRows(sqlmock.NewRows([]string{"content"}).AddRow("the cat sat"))
	mock.ExpectQuery(regexp.QuoteMeta(selectContent)).WithArgs("D2").
		WillReturnRows(sqlmock.NewRows([]string{"content"}).AddRow(nil))
	mock.ExpectQuery(regexp.QuoteMeta(selectContent)).WithArgs("D3").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(selectContentIDs)).
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}).AddRow("D1").AddRow("D2"))

	text, ok, err := src.GetText(ctx, "D1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "the cat sat", text)

	_, ok, err = src.GetText(ctx, "D2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = src.GetText(ctx, "D3")
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := src.ListDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"D1", "D2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource(map[string]string{"b": "text", "a": "  "})
	ctx := context.Background()

	_, ok, _ := src.GetText(ctx, "a")
	assert.False(t, ok)
	src.Put("c", "more")
	ids, err := src.ListDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	src.Delete("b")
	_, ok, _ = src.GetText(ctx, "b")
	assert.False(t, ok)
}
