// Package store persists forward indexes and similarity records. The engine
// treats both as a narrow key-value contract keyed by document id.
package store

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/similarity"
)

type ForwardIndexStore interface {
	LoadForwardIndexes(ctx context.Context) (map[string]index.ForwardIndex, error)
	LoadForwardIndex(ctx context.Context, docID string) (index.ForwardIndex, error)
	SaveForwardIndex(ctx context.Context, docID string, fi index.ForwardIndex) error
	DeleteForwardIndex(ctx context.Context, docID string) error
}

type SimilarityStore interface {
	LoadSimilarityRecords(ctx context.Context) ([]similarity.Record, error)
	LoadSimilarityRecord(ctx context.Context, docID string) (similarity.Record, error)
	SaveSimilarityRecord(ctx context.Context, rec similarity.Record) error
	DeleteSimilarityRecord(ctx context.Context, docID string) error
}

type Store interface {
	ForwardIndexStore
	SimilarityStore
	Ping(ctx context.Context) error
}
