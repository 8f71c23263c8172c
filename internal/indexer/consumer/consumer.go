// Package consumer connects the engine to Kafka: the indexer consumes ingest
// events and publishes index-complete events, and searcher replicas consume
// the latter to follow the indexer through the shared store.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/resilience"
)

// Indexer is the write side of *indexer.Engine.
type Indexer interface {
	IndexDocument(ctx context.Context, docID string) (index.Summary, error)
	RemoveDocument(ctx context.Context, docID string) error
}

// Follower is the replica side of *indexer.Engine.
type Follower interface {
	SyncDocuments(ctx context.Context, ids []string) error
	ReloadSuggestions(ctx context.Context, ids []string) error
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleIngest returns a MessageHandler that indexes or removes the document
// named by each ingest event. Undecodable events and documents without text
// are reported as skippable so the consumer commits past them.
func HandleIngest(ix Indexer) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event", "error", err, "key", string(key))
			return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error())
		}
		logger.Debug("processing ingest event", "doc_id", event.DocumentID, "action", event.Action)

		switch event.Action {
		case ingestion.ActionIndex, "":
			summary, err := ix.IndexDocument(ctx, event.DocumentID)
			if err != nil {
				return fmt.Errorf("indexing document %s: %w", event.DocumentID, err)
			}
			logger.Info("document indexed",
				"doc_id", event.DocumentID,
				"token_count", summary.TotalTokens,
				"replaced", summary.Replaced,
			)
		case ingestion.ActionRemove:
			err := ix.RemoveDocument(ctx, event.DocumentID)
			if errors.Is(err, apperrors.ErrDocumentNotFound) {
				logger.Info("remove of unknown document ignored", "doc_id", event.DocumentID)
				return nil
			}
			if err != nil {
				return fmt.Errorf("removing document %s: %w", event.DocumentID, err)
			}
		default:
			return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
				"unknown ingest action %q for %q", event.Action, event.DocumentID)
		}
		return nil
	}
}

// HandleIndexComplete returns a MessageHandler for searcher replicas.
func HandleIndexComplete(f Follower) kafka.MessageHandler {
	logger := slog.Default().With("component", "replica-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IndexCompleteEvent](value)
		if err != nil {
			logger.Error("failed to decode index-complete event", "error", err, "key", string(key))
			return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error())
		}
		switch event.Type {
		case ingestion.CompleteIndexed, ingestion.CompleteRemoved:
			if err := f.SyncDocuments(ctx, event.DocumentIDs); err != nil {
				return fmt.Errorf("syncing %d documents: %w", len(event.DocumentIDs), err)
			}
			if event.Type == ingestion.CompleteRemoved {
				if err := f.ReloadSuggestions(ctx, event.DocumentIDs); err != nil {
					return fmt.Errorf("dropping suggestions: %w", err)
				}
			}
		case ingestion.CompleteSuggestions:
			if err := f.ReloadSuggestions(ctx, event.DocumentIDs); err != nil {
				return fmt.Errorf("reloading suggestions: %w", err)
			}
		default:
			return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
				"unknown index-complete type %q", event.Type)
		}
		logger.Debug("replica updated",
			"type", event.Type,
			"documents", len(event.DocumentIDs),
			"generation", event.Generation,
		)
		return nil
	}
}

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// completeKey sends every index-complete event to one partition so replicas
// apply them in publish order.
const completeKey = "index-complete"

// Notifier publishes engine changes as IndexCompleteEvents. Failed publishes
// are retried with backoff; replicas that still miss an event catch up on the
// next one touching the same documents.
type Notifier struct {
	producer EventPublisher
	retry    resilience.RetryConfig
	now      func() time.Time
}

func NewNotifier(producer EventPublisher) *Notifier {
	return &Notifier{producer: producer, retry: resilience.DefaultRetryConfig(), now: time.Now}
}

func (n *Notifier) Notify(ctx context.Context, kind string, docIDs []string, generation uint64) error {
	event := kafka.Event{
		Key: completeKey,
		Value: ingestion.IndexCompleteEvent{
			Type:        kind,
			DocumentIDs: docIDs,
			Generation:  generation,
			At:          n.now().UTC(),
		},
	}
	return resilience.Retry(ctx, "publish index-complete", n.retry, func() error {
		return n.producer.Publish(ctx, event)
	})
}
