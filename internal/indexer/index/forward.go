package index

import (
	"maps"
	"slices"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
)

// ForwardStore holds the forward index of every ingested document. Stored
// mappings are never mutated; Put replaces them wholesale.
type ForwardStore struct {
	mu   sync.RWMutex
	docs map[string]ForwardIndex
}

func NewForwardStore() *ForwardStore {
	return &ForwardStore{docs: make(map[string]ForwardIndex)}
}

// Put stores fi under docID and returns the mapping it replaced, if any.
func (s *ForwardStore) Put(docID string, fi ForwardIndex) (ForwardIndex, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.docs[docID]
	s.docs[docID] = maps.Clone(fi)
	return prev, existed
}

func (s *ForwardStore) Get(docID string) (ForwardIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fi, ok := s.docs[docID]
	if !ok {
		return nil, apperrors.NotFound(docID)
	}
	return maps.Clone(fi), nil
}

func (s *ForwardStore) Has(docID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[docID]
	return ok
}

func (s *ForwardStore) Delete(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[docID]
	delete(s.docs, docID)
	return ok
}

// All returns a copy of every stored forward index keyed by document.
func (s *ForwardStore) All() map[string]ForwardIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ForwardIndex, len(s.docs))
	for id, fi := range s.docs {
		out[id] = maps.Clone(fi)
	}
	return out
}

func (s *ForwardStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.docs))
}

func (s *ForwardStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
