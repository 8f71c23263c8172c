package index

import (
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
)

// TermObserver is notified of vocabulary changes while the index write lock
// is held, so it is never behind a completed update.
type TermObserver interface {
	AddTerm(term string)
	RemoveTerm(term string)
	ResetTerms(terms []string)
}

// InvertedIndex maps term -> document -> count. It also keeps the reverse
// document -> terms lookup so removals touch only the affected terms.
type InvertedIndex struct {
	mu         sync.RWMutex
	postings   map[string]map[string]int
	docTerms   map[string][]string
	observer   TermObserver
	generation atomic.Uint64
	logger     *slog.Logger
}

func NewInvertedIndex() *InvertedIndex {
	return &InvertedIndex{
		postings: make(map[string]map[string]int),
		docTerms: make(map[string][]string),
		logger:   slog.Default().With("component", "inverted-index"),
	}
}

// SetObserver attaches o and seeds it with the current vocabulary.
func (ix *InvertedIndex) SetObserver(o TermObserver) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.observer = o
	if o != nil {
		o.ResetTerms(ix.termsLocked())
	}
}

// Merge upserts the postings of docID. A document that is already indexed
// has its old postings replaced in the same critical section, so readers
// observe either the old or the new state.
func (ix *InvertedIndex) Merge(docID string, fi ForwardIndex) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(docID)
	terms := make([]string, 0, len(fi))
	for term, count := range fi {
		if count <= 0 || !ValidKey(term) {
			continue
		}
		docs, ok := ix.postings[term]
		if !ok {
			docs = make(map[string]int)
			ix.postings[term] = docs
			if ix.observer != nil {
				ix.observer.AddTerm(term)
			}
		}
		docs[docID] = count
		terms = append(terms, term)
	}
	if len(terms) > 0 {
		sort.Strings(terms)
		ix.docTerms[docID] = terms
	}
	ix.generation.Add(1)
}

// Remove deletes every posting of docID and reports whether it was indexed.
func (ix *InvertedIndex) Remove(docID string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	removed := ix.removeLocked(docID)
	if removed {
		ix.generation.Add(1)
	}
	return removed
}

func (ix *InvertedIndex) removeLocked(docID string) bool {
	terms, ok := ix.docTerms[docID]
	if !ok {
		return false
	}
	for _, term := range terms {
		docs := ix.postings[term]
		delete(docs, docID)
		if len(docs) == 0 {
			delete(ix.postings, term)
			if ix.observer != nil {
				ix.observer.RemoveTerm(term)
			}
		}
	}
	delete(ix.docTerms, docID)
	return true
}

// Rebuild discards the current state and reconstructs it from all forward
// indexes. The new structure is built before the lock is taken.
func (ix *InvertedIndex) Rebuild(all map[string]ForwardIndex) {
	postings := make(map[string]map[string]int)
	docTerms := make(map[string][]string, len(all))
	for docID, fi := range all {
		terms := make([]string, 0, len(fi))
		for term, count := range fi {
			if count <= 0 || !ValidKey(term) {
				continue
			}
			docs, ok := postings[term]
			if !ok {
				docs = make(map[string]int)
				postings[term] = docs
			}
			docs[docID] = count
			terms = append(terms, term)
		}
		if len(terms) > 0 {
			sort.Strings(terms)
			docTerms[docID] = terms
		}
	}
	ix.swap(postings, docTerms)
	ix.logger.Info("inverted index rebuilt",
		"documents", len(docTerms),
		"terms", len(postings),
	)
}

// LoadEntries replaces the index with a previously taken Snapshot.
func (ix *InvertedIndex) LoadEntries(entries []TermEntry) {
	postings := make(map[string]map[string]int, len(entries))
	docTerms := make(map[string][]string)
	for _, entry := range entries {
		if !ValidKey(entry.Term) {
			continue
		}
		for _, p := range entry.Postings {
			if p.Count <= 0 {
				continue
			}
			docs, ok := postings[entry.Term]
			if !ok {
				docs = make(map[string]int, len(entry.Postings))
				postings[entry.Term] = docs
			}
			docs[p.DocID] = p.Count
			docTerms[p.DocID] = append(docTerms[p.DocID], entry.Term)
		}
	}
	for _, terms := range docTerms {
		sort.Strings(terms)
	}
	ix.swap(postings, docTerms)
}

func (ix *InvertedIndex) swap(postings map[string]map[string]int, docTerms map[string][]string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.postings = postings
	ix.docTerms = docTerms
	if ix.observer != nil {
		ix.observer.ResetTerms(ix.termsLocked())
	}
	ix.generation.Add(1)
}

// Postings returns a copy of the postings of term, or nil.
func (ix *InvertedIndex) Postings(term string) map[string]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return maps.Clone(ix.postings[term])
}

// View is a read-only handle valid only inside Read.
type View struct {
	ix *InvertedIndex
}

func (v View) Has(term string) bool {
	_, ok := v.ix.postings[term]
	return ok
}

// Each calls fn for every posting of term.
func (v View) Each(term string, fn func(docID string, count int)) {
	for docID, count := range v.ix.postings[term] {
		fn(docID, count)
	}
}

// Read runs fn under the read lock so that several lookups see one
// consistent state.
func (ix *InvertedIndex) Read(fn func(View)) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	fn(View{ix: ix})
}

// Snapshot returns every term with its postings, both sorted, so two indexes
// with the same content produce equal snapshots.
func (ix *InvertedIndex) Snapshot() []TermEntry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snapshotLocked()
}

// SnapshotAt returns Snapshot together with the generation it reflects.
func (ix *InvertedIndex) SnapshotAt() ([]TermEntry, uint64) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snapshotLocked(), ix.generation.Load()
}

func (ix *InvertedIndex) snapshotLocked() []TermEntry {
	entries := make([]TermEntry, 0, len(ix.postings))
	for term, docs := range ix.postings {
		postings := make(PostingList, 0, len(docs))
		for docID, count := range docs {
			postings = append(postings, Posting{DocID: docID, Count: count})
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// CheckIntegrity compares the index against the authoritative forward
// indexes and returns an integrity error describing the first mismatch.
func (ix *InvertedIndex) CheckIntegrity(forward map[string]ForwardIndex) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for term, docs := range ix.postings {
		for docID, count := range docs {
			fi, ok := forward[docID]
			if !ok {
				return apperrors.Integrity("term %q posts unknown document %q", term, docID)
			}
			if fi[term] != count {
				return apperrors.Integrity("term %q in document %q: index count %d, forward count %d",
					term, docID, count, fi[term])
			}
		}
	}
	for docID, fi := range forward {
		for term, count := range fi {
			if count <= 0 || !ValidKey(term) {
				continue
			}
			if _, ok := ix.postings[term][docID]; !ok {
				return apperrors.Integrity("document %q term %q missing from index", docID, term)
			}
		}
	}
	for docID := range ix.docTerms {
		if _, ok := forward[docID]; !ok {
			return apperrors.Integrity("reverse lookup holds unknown document %q", docID)
		}
	}
	return nil
}

// TermsOf returns the sorted terms recorded for docID.
func (ix *InvertedIndex) TermsOf(docID string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return slices.Clone(ix.docTerms[docID])
}

func (ix *InvertedIndex) Terms() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.termsLocked()
}

func (ix *InvertedIndex) termsLocked() []string {
	return slices.Sorted(maps.Keys(ix.postings))
}

func (ix *InvertedIndex) VocabularySize() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.postings)
}

func (ix *InvertedIndex) DocCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docTerms)
}

// Generation increases on every change and keys cached query results.
func (ix *InvertedIndex) Generation() uint64 {
	return ix.generation.Load()
}
