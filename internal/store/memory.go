package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
)

// Memory is a process-local Store.
type Memory struct {
	mu      sync.RWMutex
	forward map[string]index.ForwardIndex
	records map[string]similarity.Record
}

func NewMemory() *Memory {
	return &Memory{
		forward: make(map[string]index.ForwardIndex),
		records: make(map[string]similarity.Record),
	}
}

func (m *Memory) LoadForwardIndexes(_ context.Context) (map[string]index.ForwardIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]index.ForwardIndex, len(m.forward))
	for id, fi := range m.forward {
		out[id] = maps.Clone(fi)
	}
	return out, nil
}

func (m *Memory) LoadForwardIndex(_ context.Context, docID string) (index.ForwardIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fi, ok := m.forward[docID]
	if !ok {
		return nil, apperrors.NotFound(docID)
	}
	return maps.Clone(fi), nil
}

func (m *Memory) SaveForwardIndex(_ context.Context, docID string, fi index.ForwardIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forward[docID] = maps.Clone(fi)
	return nil
}

func (m *Memory) DeleteForwardIndex(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.forward, docID)
	return nil
}

func (m *Memory) LoadSimilarityRecords(_ context.Context) ([]similarity.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]similarity.Record, 0, len(m.records))
	for _, rec := range m.records {
		rec.Peers = slices.Clone(rec.Peers)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (m *Memory) LoadSimilarityRecord(_ context.Context, docID string) (similarity.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[docID]
	if !ok {
		return similarity.Record{}, apperrors.NotFound(docID)
	}
	rec.Peers = slices.Clone(rec.Peers)
	return rec, nil
}

func (m *Memory) SaveSimilarityRecord(_ context.Context, rec similarity.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Peers = slices.Clone(rec.Peers)
	m.records[rec.DocumentID] = rec
	return nil
}

func (m *Memory) DeleteSimilarityRecord(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, docID)
	return nil
}

func (m *Memory) Ping(_ context.Context) error {
	return nil
}
