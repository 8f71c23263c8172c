// Package publisher persists document text to PostgreSQL and publishes
// ingest events to Kafka for the indexer. Events are keyed by document id so
// the index and remove events of one document stay ordered.
package publisher

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/postgres"
)

const (
	StatusQueued    = "queued"
	StatusUnchanged = "unchanged"
	StatusRemoving  = "removing"
)

const (
	upsertContent = `INSERT INTO book_contents (document_id, title, content, content_hash, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (document_id) DO UPDATE
		SET title = EXCLUDED.title, content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash, updated_at = now()
		WHERE book_contents.content_hash <> EXCLUDED.content_hash
		RETURNING document_id`
	resetContentHash = `UPDATE book_contents SET content_hash = '' WHERE document_id = $1`
	deleteContent    = `DELETE FROM book_contents WHERE document_id = $1`
)

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Publisher struct {
	db       *postgres.Client
	producer EventPublisher
	now      func() time.Time
	logger   *slog.Logger
}

func New(db *postgres.Client, producer EventPublisher) *Publisher {
	return &Publisher{
		db:       db,
		producer: producer,
		now:      time.Now,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Submit stores the document text and queues it for indexing. Resubmitting
// identical text is a no-op.
func (p *Publisher) Submit(ctx context.Context, req *ingestion.SubmitRequest) (*ingestion.SubmitResponse, error) {
	contentHash := fmt.Sprintf("%x", sha256.Sum256([]byte(req.Text)))
	changed := true
	err := p.db.InTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, upsertContent,
			req.DocumentID, req.Title, req.Text, contentHash).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			changed = false
			return nil
		}
		return err
	})
	if err != nil {
		return nil, unavailable("storing document "+req.DocumentID, err)
	}
	if !changed {
		p.logger.Info("document unchanged, not requeued", "doc_id", req.DocumentID)
		return &ingestion.SubmitResponse{DocumentID: req.DocumentID, Status: StatusUnchanged}, nil
	}

	if err := p.publish(ctx, req.DocumentID, ingestion.ActionIndex); err != nil {
		// The next submit of the same text must publish again.
		if _, resetErr := p.db.DB.ExecContext(ctx, resetContentHash, req.DocumentID); resetErr != nil {
			p.logger.Error("failed to reset content hash", "doc_id", req.DocumentID, "error", resetErr)
		}
		return nil, err
	}
	return &ingestion.SubmitResponse{DocumentID: req.DocumentID, Status: StatusQueued}, nil
}

// Withdraw deletes the document text and queues its removal from the index.
func (p *Publisher) Withdraw(ctx context.Context, docID string) (*ingestion.SubmitResponse, error) {
	res, err := p.db.DB.ExecContext(ctx, deleteContent, docID)
	if err != nil {
		return nil, unavailable("deleting document "+docID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, unavailable("deleting document "+docID, err)
	}
	if n == 0 {
		return nil, apperrors.NotFound(docID)
	}
	if err := p.publish(ctx, docID, ingestion.ActionRemove); err != nil {
		return nil, err
	}
	return &ingestion.SubmitResponse{DocumentID: docID, Status: StatusRemoving}, nil
}

func (p *Publisher) publish(ctx context.Context, docID, action string) error {
	event := kafka.Event{
		Key: docID,
		Value: ingestion.IngestEvent{
			DocumentID:  docID,
			Action:      action,
			RequestedAt: p.now().UTC(),
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish ingest event",
			"doc_id", docID,
			"action", action,
			"error", err,
		)
		return apperrors.Newf(apperrors.ErrStoreUnavailable, http.StatusServiceUnavailable,
			"queueing %s of %q: %v", action, docID, err)
	}
	p.logger.Info("ingest event published", "doc_id", docID, "action", action)
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(apperrors.ErrStoreUnavailable, err))
}
