package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/postgres"
)

// Source hands document text to the indexer. A document without plain text
// is reported as not found rather than as an error.
type Source interface {
	GetText(ctx context.Context, docID string) (string, bool, error)
	ListDocumentIDs(ctx context.Context) ([]string, error)
}

// ContentSchema creates the table the ingestion service writes document
// text to.
const ContentSchema = `CREATE TABLE IF NOT EXISTS book_contents (
	document_id  TEXT PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	content      TEXT,
	content_hash TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	selectContent    = `SELECT content FROM book_contents WHERE document_id = $1`
	selectContentIDs = `SELECT document_id FROM book_contents ORDER BY document_id`
)

type PostgresSource struct {
	client *postgres.Client
}

func NewPostgresSource(client *postgres.Client) *PostgresSource {
	return &PostgresSource{client: client}
}

func (s *PostgresSource) GetText(ctx context.Context, docID string) (string, bool, error) {
	var content sql.NullString
	err := s.client.DB.QueryRowContext(ctx, selectContent, docID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading content of %s: %w", docID, err)
	}
	if !content.Valid || strings.TrimSpace(content.String) == "" {
		return "", false, nil
	}
	return content.String, true, nil
}

func (s *PostgresSource) ListDocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.client.DB.QueryContext(ctx, selectContentIDs)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MemorySource serves text from a map.
type MemorySource struct {
	mu    sync.RWMutex
	texts map[string]string
}

func NewMemorySource(texts map[string]string) *MemorySource {
	m := &MemorySource{texts: make(map[string]string, len(texts))}
	for id, text := range texts {
		m.texts[id] = text
	}
	return m
}

func (m *MemorySource) Put(docID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts[docID] = text
}

func (m *MemorySource) Delete(docID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.texts, docID)
}

func (m *MemorySource) GetText(_ context.Context, docID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.texts[docID]
	if !ok || strings.TrimSpace(text) == "" {
		return "", false, nil
	}
	return text, true, nil
}

func (m *MemorySource) ListDocumentIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.texts))
	for id := range m.texts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
