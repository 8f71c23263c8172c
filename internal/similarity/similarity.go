// Package similarity precomputes, for every document, the peers whose term
// sets are closest under Jaccard similarity. Records are a cache derived from
// the forward indexes and are replaced one document at a time.
package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"
)

type Suggestion struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
}

type Record struct {
	DocumentID string       `json:"document_id"`
	Peers      []Suggestion `json:"peers"`
	ComputedAt time.Time    `json:"computed_at"`
}

// RecordWriter persists records. Implementations handle their own retries.
type RecordWriter interface {
	SaveSimilarityRecord(ctx context.Context, rec Record) error
	DeleteSimilarityRecord(ctx context.Context, docID string) error
}

type Config struct {
	TopK      int
	Workers   int
	BatchSize int
}

func DefaultConfig() Config {
	return Config{TopK: 5, Workers: 4, BatchSize: 64}
}

// Report summarises one recompute or update pass.
type Report struct {
	Documents    int           `json:"documents"`
	Computed     int           `json:"computed"`
	Removed      int           `json:"removed"`
	FailedPairs  int           `json:"failed_pairs"`
	FailedWrites int           `json:"failed_writes"`
	Canceled     bool          `json:"canceled"`
	Elapsed      time.Duration `json:"elapsed"`
}

type Engine struct {
	cfg     Config
	writer  RecordWriter
	mu      sync.RWMutex
	records map[string]Record
	score   func(a, b *roaring.Bitmap) (float64, error)
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an Engine. writer may be nil when records only live in memory.
func New(cfg Config, writer RecordWriter) *Engine {
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	return &Engine{
		cfg:     cfg,
		writer:  writer,
		records: make(map[string]Record),
		score: func(a, b *roaring.Bitmap) (float64, error) {
			return Jaccard(a, b), nil
		},
		now:    time.Now,
		logger: slog.Default().With("component", "similarity"),
	}
}

// Suggestions returns the stored peers of docID and whether a record exists.
func (e *Engine) Suggestions(docID string) ([]Suggestion, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[docID]
	if !ok {
		return nil, false
	}
	return slices.Clone(rec.Peers), true
}

// Load seeds the engine with previously persisted records.
func (e *Engine) Load(records []Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range records {
		e.records[rec.DocumentID] = rec
	}
}

// Replace swaps the whole record set for records.
func (e *Engine) Replace(records []Record) {
	next := make(map[string]Record, len(records))
	for _, rec := range records {
		next[rec.DocumentID] = rec
	}
	e.mu.Lock()
	e.records = next
	e.mu.Unlock()
}

// Has reports whether a record exists for docID.
func (e *Engine) Has(docID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.records[docID]
	return ok
}

// Forget drops the record of docID.
func (e *Engine) Forget(ctx context.Context, docID string) error {
	e.mu.Lock()
	delete(e.records, docID)
	e.mu.Unlock()
	if e.writer == nil {
		return nil
	}
	if err := e.writer.DeleteSimilarityRecord(ctx, docID); err != nil {
		return fmt.Errorf("deleting similarity record %s: %w", docID, err)
	}
	return nil
}

func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.records)
}

// Recompute rebuilds every record from docs. Cancellation is honoured
// between batches; records written by completed batches stay valid.
func (e *Engine) Recompute(ctx context.Context, docs map[string]index.ForwardIndex) (Report, error) {
	start := time.Now()
	c := newCorpus(docs)
	rows := make([]int, len(c.ids))
	for i := range rows {
		rows[i] = i
	}
	report := Report{Documents: len(c.ids)}
	err := e.run(ctx, c, rows, func(i int) ([]Suggestion, int) {
		return e.fullRow(c, i)
	}, &report)
	if err == nil {
		report.Removed = e.dropMissing(ctx, c, &report)
	}
	report.Elapsed = time.Since(start)
	e.logReport("similarity recompute finished", report)
	return report, err
}

// Update brings the records in line with docs after the documents in
// changed were added, replaced or removed. Only pairs touching a changed
// document are rescored unless a record lost one of its peers, in which case
// that record is recomputed in full. The result equals a full Recompute.
func (e *Engine) Update(ctx context.Context, docs map[string]index.ForwardIndex, changed []string) (Report, error) {
	start := time.Now()
	c := newCorpus(docs)
	report := Report{Documents: len(c.ids)}

	changedSet := make(map[string]struct{}, len(changed))
	var present []int
	for _, id := range changed {
		if _, dup := changedSet[id]; dup {
			continue
		}
		changedSet[id] = struct{}{}
		if i, ok := c.pos[id]; ok {
			present = append(present, i)
			continue
		}
		if err := e.Forget(ctx, id); err != nil {
			report.FailedWrites++
			e.logger.Warn("failed to delete similarity record", "doc_id", id, "error", err)
		}
		report.Removed++
	}

	e.mu.RLock()
	previous := make(map[string]Record, len(e.records))
	for id, rec := range e.records {
		previous[id] = rec
	}
	e.mu.RUnlock()

	rows := make([]int, len(c.ids))
	for i := range rows {
		rows[i] = i
	}
	err := e.run(ctx, c, rows, func(i int) ([]Suggestion, int) {
		id := c.ids[i]
		rec, ok := previous[id]
		if _, isChanged := changedSet[id]; isChanged || !ok {
			return e.fullRow(c, i)
		}
		return e.patchRow(c, i, rec.Peers, changedSet, present)
	}, &report)
	report.Elapsed = time.Since(start)
	e.logReport("similarity update finished", report)
	return report, err
}

// fullRow scores document i against every other document.
func (e *Engine) fullRow(c *corpus, i int) ([]Suggestion, int) {
	best := newTopK(e.cfg.TopK)
	failed := 0
	self := c.ids[i]
	for j, peer := range c.ids {
		if peer == self {
			continue
		}
		s, ok := e.pair(c, i, j)
		if !ok {
			failed++
			continue
		}
		if s > 0 {
			best.offer(Suggestion{DocumentID: peer, Score: s})
		}
	}
	return best.sorted(), failed
}

// patchRow merges fresh scores against the changed documents into the
// previous peers of document i, falling back to fullRow when a previous
// peer disappeared or lost score.
func (e *Engine) patchRow(c *corpus, i int, old []Suggestion, changed map[string]struct{}, present []int) ([]Suggestion, int) {
	fresh := make(map[string]float64, len(present))
	failed := 0
	for _, j := range present {
		if j == i {
			continue
		}
		s, ok := e.pair(c, i, j)
		if !ok {
			failed++
			continue
		}
		fresh[c.ids[j]] = s
	}

	best := newTopK(e.cfg.TopK)
	for _, peer := range old {
		if _, known := c.pos[peer.DocumentID]; !known {
			return e.fullRow(c, i)
		}
		if _, isChanged := changed[peer.DocumentID]; !isChanged {
			best.offer(peer)
			continue
		}
		s, scored := fresh[peer.DocumentID]
		if !scored || s < peer.Score {
			return e.fullRow(c, i)
		}
	}
	for id, s := range fresh {
		if s > 0 {
			best.offer(Suggestion{DocumentID: id, Score: s})
		}
	}
	return best.sorted(), failed
}

// pair scores documents i and j; failures and panics are reported as !ok so
// one bad pair cannot abort a pass.
func (e *Engine) pair(c *corpus, i, j int) (score float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("similarity pair panicked",
				"doc_id", c.ids[i], "peer_id", c.ids[j], "panic", r)
			score, ok = 0, false
		}
	}()
	s, err := e.score(c.sets[i], c.sets[j])
	if err != nil || math.IsNaN(s) || s < 0 || s > 1 {
		e.logger.Warn("skipping similarity pair",
			"doc_id", c.ids[i], "peer_id", c.ids[j], "score", s, "error", err)
		return 0, false
	}
	return s, true
}

// run computes rows in batches of BatchSize with at most Workers goroutines
// and applies each batch before checking ctx for the next one.
func (e *Engine) run(ctx context.Context, c *corpus, rows []int, rowFn func(i int) ([]Suggestion, int), report *Report) error {
	writeCtx := context.WithoutCancel(ctx)
	for start := 0; start < len(rows); start += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			report.Canceled = true
			return fmt.Errorf("similarity pass canceled after %d of %d documents: %w", start, len(rows), err)
		}
		end := min(start+e.cfg.BatchSize, len(rows))
		batch := rows[start:end]
		peers := make([][]Suggestion, len(batch))
		failures := make([]int, len(batch))

		var g errgroup.Group
		g.SetLimit(e.cfg.Workers)
		for k, i := range batch {
			g.Go(func() error {
				peers[k], failures[k] = rowFn(i)
				return nil
			})
		}
		_ = g.Wait()

		computedAt := e.now().UTC()
		for k, i := range batch {
			report.FailedPairs += failures[k]
			rec := Record{DocumentID: c.ids[i], Peers: peers[k], ComputedAt: computedAt}
			e.mu.Lock()
			e.records[rec.DocumentID] = rec
			e.mu.Unlock()
			report.Computed++
			if e.writer == nil {
				continue
			}
			if err := e.writer.SaveSimilarityRecord(writeCtx, rec); err != nil {
				report.FailedWrites++
				e.logger.Warn("failed to persist similarity record",
					"doc_id", rec.DocumentID, "error", err)
			}
		}
	}
	return nil
}

// dropMissing deletes records of documents that are no longer in the corpus.
func (e *Engine) dropMissing(ctx context.Context, c *corpus, report *Report) int {
	e.mu.RLock()
	var stale []string
	for id := range e.records {
		if _, ok := c.pos[id]; !ok {
			stale = append(stale, id)
		}
	}
	e.mu.RUnlock()
	for _, id := range stale {
		if err := e.Forget(ctx, id); err != nil {
			report.FailedWrites++
			e.logger.Warn("failed to delete similarity record", "doc_id", id, "error", err)
		}
	}
	return len(stale)
}

func (e *Engine) logReport(msg string, r Report) {
	e.logger.Info(msg,
		"documents", r.Documents,
		"computed", r.Computed,
		"removed", r.Removed,
		"failed_pairs", r.FailedPairs,
		"failed_writes", r.FailedWrites,
		"canceled", r.Canceled,
		"elapsed", r.Elapsed,
	)
}
