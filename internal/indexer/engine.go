// Package indexer owns the engine state: the forward indexes, the inverted
// index with its spelling vocabulary, and the similarity records. It persists
// forward indexes and records through the store and the inverted index
// through segment snapshots.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/spell"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/searcher/resolver"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Source hands document text to the engine.
type Source interface {
	GetText(ctx context.Context, docID string) (string, bool, error)
	ListDocumentIDs(ctx context.Context) ([]string, error)
}

// Notifier is told about committed changes so searcher replicas can follow.
// kind is one of the ingestion.Complete* values.
type Notifier interface {
	Notify(ctx context.Context, kind string, docIDs []string, generation uint64) error
}

type Options struct {
	DataDir         string
	SnapshotKeep    int
	IngestWorkers   int
	Tokenizer       tokenizer.Options
	MaxEditDistance int
	DefaultPageSize int
	MaxPageSize     int
	Similarity      similarity.Config
	// Replica engines never write to the store; they follow the indexer.
	Replica bool
}

func DefaultOptions() Options {
	return Options{
		SnapshotKeep:    3,
		IngestWorkers:   4,
		Tokenizer:       tokenizer.DefaultOptions(),
		MaxEditDistance: spell.DefaultMaxDistance,
		DefaultPageSize: 10,
		MaxPageSize:     100,
		Similarity:      similarity.DefaultConfig(),
	}
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DataDir:       cfg.Indexer.DataDir,
		SnapshotKeep:  cfg.Indexer.SnapshotKeep,
		IngestWorkers: cfg.Indexer.IngestWorkers,
		Tokenizer: tokenizer.Options{
			MinTokenLength: cfg.Indexer.Tokenizer.MinTokenLength,
			StopWords:      cfg.Indexer.Tokenizer.StopWords,
			Stem:           cfg.Indexer.Tokenizer.Stem,
		},
		MaxEditDistance: cfg.Search.MaxEditDistance,
		DefaultPageSize: cfg.Search.DefaultPageSize,
		MaxPageSize:     cfg.Search.MaxPageSize,
		Similarity: similarity.Config{
			TopK:      cfg.Similarity.TopK,
			Workers:   cfg.Similarity.Workers,
			BatchSize: cfg.Similarity.BatchSize,
		},
	}
}

// Deps are the collaborators of an Engine. All fields are optional: a nil
// Store is replaced by an in-memory one and a nil Source makes
// IndexDocument unavailable.
type Deps struct {
	Source   Source
	Store    store.Store
	Notifier Notifier
	Metrics  *metrics.Metrics
}

type Engine struct {
	opts       Options
	tok        *tokenizer.Analyzer
	source     Source
	store      store.Store
	notifier   Notifier
	metrics    *metrics.Metrics
	forward    *index.ForwardStore
	inverted   *index.InvertedIndex
	speller    *spell.Corrector
	resolver   *resolver.Resolver
	similarity *similarity.Engine
	writer     *segment.Writer

	// writeMu orders store writes with the in-memory update of a document.
	writeMu sync.Mutex
	simMu   sync.Mutex
	dirtyMu sync.Mutex
	dirty   map[string]struct{}

	snapshotMu   sync.Mutex
	snapshotGen  uint64
	lastSnapshot string

	logger *slog.Logger
}

func NewEngine(opts Options, deps Deps) (*Engine, error) {
	def := DefaultOptions()
	if opts.IngestWorkers < 1 {
		opts.IngestWorkers = def.IngestWorkers
	}
	if opts.SnapshotKeep < 1 {
		opts.SnapshotKeep = def.SnapshotKeep
	}
	if opts.DataDir != "" {
		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index data directory: %w", err)
		}
	}
	st := deps.Store
	if st == nil {
		st = store.NewMemory()
	}
	var recordWriter similarity.RecordWriter
	if !opts.Replica {
		recordWriter = st
	}

	tok := tokenizer.New(opts.Tokenizer)
	inverted := index.NewInvertedIndex()
	speller := spell.New(opts.MaxEditDistance)
	inverted.SetObserver(speller)

	e := &Engine{
		opts:       opts,
		tok:        tok,
		source:     deps.Source,
		store:      st,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		forward:    index.NewForwardStore(),
		inverted:   inverted,
		speller:    speller,
		similarity: similarity.New(opts.Similarity, recordWriter),
		dirty:      make(map[string]struct{}),
		logger:     slog.Default().With("component", "indexer"),
	}
	e.resolver = resolver.New(tok, inverted, speller, resolver.Options{
		DefaultPageSize: opts.DefaultPageSize,
		MaxPageSize:     opts.MaxPageSize,
	})
	if opts.DataDir != "" && !opts.Replica {
		e.writer = segment.NewWriter(opts.DataDir)
	}
	return e, nil
}

// IndexDocument fetches the text of docID from the source and indexes it.
// A document without text fails with ErrEmptyContent and leaves any
// previously indexed version in place.
func (e *Engine) IndexDocument(ctx context.Context, docID string) (index.Summary, error) {
	summary, err := e.indexDocument(ctx, docID)
	if err != nil {
		return summary, err
	}
	e.notify(ctx, ingestion.CompleteIndexed, []string{docID})
	return summary, nil
}

func (e *Engine) indexDocument(ctx context.Context, docID string) (index.Summary, error) {
	if e.source == nil {
		return index.Summary{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"engine has no document source")
	}
	if !index.ValidKey(docID) {
		return index.Summary{}, reservedID(docID)
	}
	text, found, err := e.source.GetText(ctx, docID)
	if err != nil {
		e.metrics.RecordIndexed("failed")
		return index.Summary{}, fmt.Errorf("fetching text of %s: %w",
			docID, errors.Join(apperrors.ErrStoreUnavailable, err))
	}
	if !found {
		e.metrics.RecordIndexed("empty")
		return index.Summary{}, apperrors.EmptyContent(docID)
	}
	return e.IndexText(ctx, docID, text)
}

// IndexText tokenizes text, persists the forward index and merges it into
// the inverted index. Re-indexing replaces the previous version.
func (e *Engine) IndexText(ctx context.Context, docID, text string) (index.Summary, error) {
	if !index.ValidKey(docID) {
		return index.Summary{}, reservedID(docID)
	}
	if strings.TrimSpace(text) == "" {
		e.metrics.RecordIndexed("empty")
		return index.Summary{}, apperrors.EmptyContent(docID)
	}
	fi, dropped := index.Sanitize(e.tok.Frequencies(text))
	if len(fi) == 0 {
		e.metrics.RecordIndexed("empty")
		return index.Summary{}, apperrors.EmptyContent(docID)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if !e.opts.Replica {
		if err := e.store.SaveForwardIndex(ctx, docID, fi); err != nil {
			e.metrics.RecordIndexed("failed")
			return index.Summary{}, fmt.Errorf("persisting forward index %s: %w", docID, err)
		}
	}
	replaced := e.applyLocked(docID, fi)
	summary := index.Summary{
		DocumentID:     docID,
		DistinctTokens: len(fi),
		TotalTokens:    fi.Total(),
		DroppedKeys:    dropped,
		Replaced:       replaced,
	}
	if replaced {
		e.metrics.RecordIndexed("replaced")
	} else {
		e.metrics.RecordIndexed("indexed")
	}
	e.logger.Debug("document indexed",
		"doc_id", docID,
		"token_count", summary.TotalTokens,
		"distinct_tokens", summary.DistinctTokens,
		"replaced", replaced,
	)
	return summary, nil
}

// Outcome is the result of one document in a batch ingest.
type Outcome struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

const (
	OutcomeIndexed  = "indexed"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

type BatchReport struct {
	Total    int           `json:"total"`
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Outcomes []Outcome     `json:"outcomes"`
	Elapsed  time.Duration `json:"elapsed"`
}

// IndexAll indexes every document the source lists.
func (e *Engine) IndexAll(ctx context.Context) (BatchReport, error) {
	if e.source == nil {
		return BatchReport{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"engine has no document source")
	}
	ids, err := e.source.ListDocumentIDs(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("listing documents: %w", err)
	}
	return e.IndexBatch(ctx, ids)
}

// IndexBatch indexes ids with up to IngestWorkers documents tokenized in
// parallel. Every document gets its own outcome; a failure never aborts the
// batch. Cancellation stops scheduling new documents.
func (e *Engine) IndexBatch(ctx context.Context, ids []string) (BatchReport, error) {
	start := time.Now()
	outcomes := make([]Outcome, len(ids))
	for i, id := range ids {
		outcomes[i] = Outcome{DocumentID: id, Status: OutcomeCanceled}
	}

	var g errgroup.Group
	g.SetLimit(e.opts.IngestWorkers)
	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = e.indexOne(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	report := BatchReport{Total: len(ids), Outcomes: outcomes}
	var indexed []string
	for _, o := range outcomes {
		switch o.Status {
		case OutcomeIndexed:
			report.Indexed++
			indexed = append(indexed, o.DocumentID)
		case OutcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}
	report.Elapsed = time.Since(start)
	if len(indexed) > 0 {
		e.notify(ctx, ingestion.CompleteIndexed, indexed)
	}
	e.logger.Info("batch ingest finished",
		"total", report.Total,
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"elapsed_ms", report.Elapsed.Milliseconds(),
	)
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("batch ingest canceled: %w", err)
	}
	return report, nil
}

func (e *Engine) indexOne(ctx context.Context, docID string) Outcome {
	if ctx.Err() != nil {
		return Outcome{DocumentID: docID, Status: OutcomeCanceled}
	}
	_, err := e.indexDocument(ctx, docID)
	switch {
	case err == nil:
		return Outcome{DocumentID: docID, Status: OutcomeIndexed}
	case apperrors.IsSkippable(err):
		e.logger.Info("skipping document", "doc_id", docID, "reason", err)
		return Outcome{DocumentID: docID, Status: OutcomeSkipped, Error: err.Error()}
	default:
		e.logger.Error("failed to index document", "doc_id", docID, "error", err)
		return Outcome{DocumentID: docID, Status: OutcomeFailed, Error: err.Error()}
	}
}

// RemoveDocument deletes docID from the store and every in-memory structure.
func (e *Engine) RemoveDocument(ctx context.Context, docID string) error {
	e.writeMu.Lock()
	if !e.forward.Has(docID) {
		e.writeMu.Unlock()
		return apperrors.NotFound(docID)
	}
	if !e.opts.Replica {
		if err := e.store.DeleteForwardIndex(ctx, docID); err != nil {
			e.writeMu.Unlock()
			return fmt.Errorf("deleting forward index %s: %w", docID, err)
		}
	}
	e.dropLocked(docID)
	e.writeMu.Unlock()

	if err := e.similarity.Forget(ctx, docID); err != nil {
		e.logger.Warn("failed to delete similarity record", "doc_id", docID, "error", err)
	}
	e.metrics.RecordIndexed("removed")
	e.logger.Info("document removed", "doc_id", docID)
	e.notify(ctx, ingestion.CompleteRemoved, []string{docID})
	return nil
}

// Apply merges a forward index computed elsewhere without persisting it.
func (e *Engine) Apply(docID string, counts map[string]int) (index.Summary, error) {
	if !index.ValidKey(docID) {
		return index.Summary{}, reservedID(docID)
	}
	fi, dropped := index.Sanitize(counts)
	if len(fi) == 0 {
		return index.Summary{}, apperrors.EmptyContent(docID)
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	replaced := e.applyLocked(docID, fi)
	return index.Summary{
		DocumentID:     docID,
		DistinctTokens: len(fi),
		TotalTokens:    fi.Total(),
		DroppedKeys:    dropped,
		Replaced:       replaced,
	}, nil
}

// Drop removes docID from memory only and reports whether it was present.
func (e *Engine) Drop(ctx context.Context, docID string) bool {
	e.writeMu.Lock()
	present := e.forward.Has(docID)
	if present {
		e.dropLocked(docID)
	}
	e.writeMu.Unlock()
	if e.opts.Replica {
		_ = e.similarity.Forget(ctx, docID)
	}
	return present
}

// SyncDocuments reloads the forward indexes of ids from the store, dropping
// documents the store no longer has.
func (e *Engine) SyncDocuments(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		fi, err := e.store.LoadForwardIndex(ctx, id)
		switch {
		case errors.Is(err, apperrors.ErrDocumentNotFound):
			e.Drop(ctx, id)
		case err != nil:
			errs = append(errs, fmt.Errorf("syncing %s: %w", id, err))
		default:
			if _, err := e.Apply(id, fi); errors.Is(err, apperrors.ErrEmptyContent) {
				e.Drop(ctx, id)
			}
		}
	}
	return errors.Join(errs...)
}

// ReloadSuggestions refreshes similarity records from the store: all of
// them when ids is empty, otherwise only those of ids.
func (e *Engine) ReloadSuggestions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		records, err := e.store.LoadSimilarityRecords(ctx)
		if err != nil {
			return fmt.Errorf("reloading similarity records: %w", err)
		}
		e.similarity.Replace(records)
		return nil
	}
	var errs []error
	for _, id := range ids {
		rec, err := e.store.LoadSimilarityRecord(ctx, id)
		switch {
		case errors.Is(err, apperrors.ErrDocumentNotFound):
			_ = e.similarity.Forget(ctx, id)
		case err != nil:
			errs = append(errs, fmt.Errorf("reloading record %s: %w", id, err))
		default:
			e.similarity.Load([]similarity.Record{rec})
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) applyLocked(docID string, fi index.ForwardIndex) bool {
	_, replaced := e.forward.Put(docID, fi)
	e.inverted.Merge(docID, fi)
	e.markDirty(docID)
	e.updateGauges()
	return replaced
}

func (e *Engine) dropLocked(docID string) {
	e.forward.Delete(docID)
	e.inverted.Remove(docID)
	e.markDirty(docID)
	e.updateGauges()
}

// Query resolves free text into one ranked page of document ids.
func (e *Engine) Query(ctx context.Context, text string, page, pageSize int) (*resolver.Result, error) {
	return e.resolver.Resolve(ctx, resolver.Request{Text: text, Page: page, PageSize: pageSize})
}

// Normalize applies the paging defaults Query would apply.
func (e *Engine) Normalize(page, pageSize int) (int, int) {
	req := e.resolver.Normalize(resolver.Request{Page: page, PageSize: pageSize})
	return req.Page, req.PageSize
}

// SuggestionsFor returns the precomputed similar documents of docID. A known
// document whose record has not been computed yet has no suggestions.
func (e *Engine) SuggestionsFor(docID string) ([]similarity.Suggestion, error) {
	if !e.forward.Has(docID) {
		return nil, apperrors.NotFound(docID)
	}
	peers, _ := e.similarity.Suggestions(docID)
	if peers == nil {
		peers = []similarity.Suggestion{}
	}
	return peers, nil
}

func (e *Engine) ForwardIndex(docID string) (index.ForwardIndex, error) {
	return e.forward.Get(docID)
}

func (e *Engine) Postings(term string) map[string]int {
	return e.inverted.Postings(term)
}

func (e *Engine) Generation() uint64 {
	return e.inverted.Generation()
}

// CheckIntegrity verifies the inverted index against the forward indexes.
func (e *Engine) CheckIntegrity() error {
	return e.inverted.CheckIntegrity(e.forward.All())
}

// Rebuild reconstructs the inverted index from the forward indexes.
func (e *Engine) Rebuild() {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.inverted.Rebuild(e.forward.All())
	e.updateGauges()
}

// markDirty queues ids for the next similarity refresh. Replicas reload
// records computed by the indexer instead.
func (e *Engine) markDirty(ids ...string) {
	if e.opts.Replica {
		return
	}
	e.dirtyMu.Lock()
	defer e.dirtyMu.Unlock()
	for _, id := range ids {
		e.dirty[id] = struct{}{}
	}
}

func (e *Engine) takeDirty() []string {
	e.dirtyMu.Lock()
	defer e.dirtyMu.Unlock()
	ids := make([]string, 0, len(e.dirty))
	for id := range e.dirty {
		ids = append(ids, id)
	}
	clear(e.dirty)
	return ids
}

func (e *Engine) notify(ctx context.Context, kind string, ids []string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, kind, ids, e.inverted.Generation()); err != nil {
		e.logger.Warn("failed to publish index change", "kind", kind, "documents", len(ids), "error", err)
	}
}

func (e *Engine) updateGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.SetIndexStats(e.inverted.DocCount(), e.inverted.VocabularySize(), e.inverted.Generation())
}

func reservedID(docID string) error {
	return apperrors.Newf(apperrors.ErrReservedKey, http.StatusBadRequest, "document id %q is reserved", docID)
}
