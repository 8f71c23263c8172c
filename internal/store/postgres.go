package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/resilience"
	"github.com/lib/pq"
)

// Schema creates the tables used by Postgres.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS forward_indexes (
		document_id TEXT PRIMARY KEY,
		tokens      JSONB NOT NULL,
		indexed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS similarity_records (
		document_id TEXT PRIMARY KEY,
		peers       JSONB NOT NULL,
		computed_at TIMESTAMPTZ NOT NULL
	)`,
}

const (
	selectForwardIndexes = `SELECT document_id, tokens FROM forward_indexes`
	selectForwardIndex   = `SELECT tokens FROM forward_indexes WHERE document_id = $1`
	upsertForwardIndex   = `INSERT INTO forward_indexes (document_id, tokens, indexed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (document_id) DO UPDATE SET tokens = EXCLUDED.tokens, indexed_at = now()`
	deleteForwardIndex = `DELETE FROM forward_indexes WHERE document_id = $1`

	selectSimilarityRecords = `SELECT document_id, peers, computed_at FROM similarity_records ORDER BY document_id`
	selectSimilarityRecord  = `SELECT peers, computed_at FROM similarity_records WHERE document_id = $1`
	upsertSimilarityRecord  = `INSERT INTO similarity_records (document_id, peers, computed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id) DO UPDATE SET peers = EXCLUDED.peers, computed_at = EXCLUDED.computed_at`
	deleteSimilarityRecord = `DELETE FROM similarity_records WHERE document_id = $1`
)

// Postgres stores forward indexes and similarity records as JSONB rows.
// Writes are retried on transient failures.
type Postgres struct {
	client *postgres.Client
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func NewPostgres(client *postgres.Client, retry resilience.RetryConfig) *Postgres {
	if retry.Retryable == nil {
		retry.Retryable = IsTransient
	}
	return &Postgres{
		client: client,
		retry:  retry,
		logger: slog.Default().With("component", "postgres-store"),
	}
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.client.Exec(ctx, Schema...); err != nil {
		return fmt.Errorf("migrating store schema: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Postgres) LoadForwardIndexes(ctx context.Context) (map[string]index.ForwardIndex, error) {
	rows, err := p.client.DB.QueryContext(ctx, selectForwardIndexes)
	if err != nil {
		return nil, unavailable("loading forward indexes", err)
	}
	defer rows.Close()

	out := make(map[string]index.ForwardIndex)
	for rows.Next() {
		var (
			docID string
			raw   []byte
		)
		if err := rows.Scan(&docID, &raw); err != nil {
			return nil, fmt.Errorf("scanning forward index row: %w", err)
		}
		fi, err := decodeForwardIndex(raw)
		if err != nil {
			p.logger.Warn("skipping undecodable forward index", "doc_id", docID, "error", err)
			continue
		}
		out[docID] = fi
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating forward indexes", err)
	}
	return out, nil
}

func (p *Postgres) LoadForwardIndex(ctx context.Context, docID string) (index.ForwardIndex, error) {
	var raw []byte
	err := p.client.DB.QueryRowContext(ctx, selectForwardIndex, docID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(docID)
	}
	if err != nil {
		return nil, unavailable("loading forward index "+docID, err)
	}
	fi, err := decodeForwardIndex(raw)
	if err != nil {
		return nil, corrupt("decoding forward index "+docID, err)
	}
	return fi, nil
}

func (p *Postgres) SaveForwardIndex(ctx context.Context, docID string, fi index.ForwardIndex) error {
	data, err := json.Marshal(fi)
	if err != nil {
		return fmt.Errorf("encoding forward index %s: %w", docID, err)
	}
	return p.exec(ctx, "save forward index", upsertForwardIndex, docID, data)
}

func (p *Postgres) DeleteForwardIndex(ctx context.Context, docID string) error {
	return p.exec(ctx, "delete forward index", deleteForwardIndex, docID)
}

func (p *Postgres) LoadSimilarityRecords(ctx context.Context) ([]similarity.Record, error) {
	rows, err := p.client.DB.QueryContext(ctx, selectSimilarityRecords)
	if err != nil {
		return nil, unavailable("loading similarity records", err)
	}
	defer rows.Close()

	var out []similarity.Record
	for rows.Next() {
		var (
			rec similarity.Record
			raw []byte
		)
		if err := rows.Scan(&rec.DocumentID, &raw, &rec.ComputedAt); err != nil {
			return nil, fmt.Errorf("scanning similarity row: %w", err)
		}
		if err := json.Unmarshal(raw, &rec.Peers); err != nil {
			p.logger.Warn("skipping undecodable similarity record", "doc_id", rec.DocumentID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating similarity records", err)
	}
	return out, nil
}

func (p *Postgres) LoadSimilarityRecord(ctx context.Context, docID string) (similarity.Record, error) {
	rec := similarity.Record{DocumentID: docID}
	var raw []byte
	err := p.client.DB.QueryRowContext(ctx, selectSimilarityRecord, docID).Scan(&raw, &rec.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return similarity.Record{}, apperrors.NotFound(docID)
	}
	if err != nil {
		return similarity.Record{}, unavailable("loading similarity record "+docID, err)
	}
	if err := json.Unmarshal(raw, &rec.Peers); err != nil {
		return similarity.Record{}, corrupt("decoding similarity record "+docID, err)
	}
	return rec, nil
}

func (p *Postgres) SaveSimilarityRecord(ctx context.Context, rec similarity.Record) error {
	peers := rec.Peers
	if peers == nil {
		peers = []similarity.Suggestion{}
	}
	data, err := json.Marshal(peers)
	if err != nil {
		return fmt.Errorf("encoding similarity record %s: %w", rec.DocumentID, err)
	}
	computedAt := rec.ComputedAt
	if computedAt.IsZero() {
		computedAt = time.Now().UTC()
	}
	return p.exec(ctx, "save similarity record", upsertSimilarityRecord, rec.DocumentID, data, computedAt)
}

func (p *Postgres) DeleteSimilarityRecord(ctx context.Context, docID string) error {
	return p.exec(ctx, "delete similarity record", deleteSimilarityRecord, docID)
}

func (p *Postgres) exec(ctx context.Context, name, query string, args ...any) error {
	err := resilience.Retry(ctx, name, p.retry, func() error {
		_, err := p.client.DB.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return unavailable(name, err)
	}
	return nil
}

// IsTransient reports whether a database error may succeed on retry:
// connection failures, serialization conflicts and resource exhaustion.
// Other server-side errors are permanent.
func IsTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return true
		default:
			return false
		}
	}
	return true
}

func decodeForwardIndex(raw []byte) (index.ForwardIndex, error) {
	var counts map[string]int
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, err
	}
	fi, _ := index.Sanitize(counts)
	return fi, nil
}

// corrupt marks a stored row that cannot be decoded.
func corrupt(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(apperrors.ErrInternal, err))
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(apperrors.ErrStoreUnavailable, err))
}
