package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/similarity"
)

// LoadReport describes how the engine state was recovered on startup.
type LoadReport struct {
	Documents int    `json:"documents"`
	Terms     int    `json:"terms"`
	Records   int    `json:"records"`
	Snapshot  string `json:"snapshot,omitempty"`
	Rebuilt   bool   `json:"rebuilt"`
}

// Load restores the engine from the store and the newest readable snapshot.
// The snapshot is only used when it matches the stored forward indexes;
// otherwise the inverted index is rebuilt from them. Documents without a
// similarity record are queued for the next refresh.
func (e *Engine) Load(ctx context.Context) (LoadReport, error) {
	forwards, err := e.store.LoadForwardIndexes(ctx)
	if err != nil {
		return LoadReport{}, fmt.Errorf("loading forward indexes: %w", err)
	}

	e.writeMu.Lock()
	for docID, fi := range forwards {
		e.forward.Put(docID, fi)
	}
	report := LoadReport{Documents: len(forwards)}
	report.Snapshot = e.restoreSnapshot(forwards)
	if report.Snapshot == "" {
		e.inverted.Rebuild(forwards)
		report.Rebuilt = true
	}
	report.Terms = e.inverted.VocabularySize()
	e.updateGauges()
	e.writeMu.Unlock()

	records, err := e.store.LoadSimilarityRecords(ctx)
	if err != nil {
		e.logger.Warn("similarity records unavailable, they will be recomputed", "error", err)
		records = nil
	}
	e.similarity.Replace(records)
	report.Records = len(records)
	for _, rec := range records {
		if _, ok := forwards[rec.DocumentID]; !ok {
			e.markDirty(rec.DocumentID)
		}
	}
	for docID := range forwards {
		if !e.similarity.Has(docID) {
			e.markDirty(docID)
		}
	}

	e.logger.Info("engine state loaded",
		"documents", report.Documents,
		"terms", report.Terms,
		"records", report.Records,
		"snapshot", report.Snapshot,
		"rebuilt", report.Rebuilt,
	)
	return report, nil
}

// restoreSnapshot loads the newest readable snapshot and returns its name,
// or "" when none could be used.
func (e *Engine) restoreSnapshot(forwards map[string]index.ForwardIndex) string {
	if e.opts.DataDir == "" {
		return ""
	}
	paths, err := segment.List(e.opts.DataDir)
	if err != nil {
		e.logger.Warn("cannot list snapshots", "error", err)
		return ""
	}
	for i := len(paths) - 1; i >= 0; i-- {
		entries, gen, err := readSnapshot(paths[i])
		if err != nil {
			e.logger.Warn("skipping unreadable snapshot", "snapshot", paths[i], "error", err)
			continue
		}
		e.inverted.LoadEntries(entries)
		if err := e.inverted.CheckIntegrity(forwards); err != nil {
			e.logger.Warn("snapshot does not match forward indexes, rebuilding",
				"snapshot", paths[i], "error", err)
			return ""
		}
		name := filepath.Base(paths[i])
		e.snapshotMu.Lock()
		e.lastSnapshot = name
		e.snapshotGen = e.inverted.Generation()
		e.snapshotMu.Unlock()
		e.logger.Info("snapshot restored", "snapshot", name, "snapshot_generation", gen)
		return name
	}
	return ""
}

func readSnapshot(path string) ([]index.TermEntry, uint64, error) {
	r, err := segment.OpenReader(path)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()
	entries, err := r.Entries()
	if err != nil {
		return nil, 0, err
	}
	return entries, r.Generation(), nil
}

// Snapshot writes the inverted index to a new segment file unless nothing
// changed since the previous one, then prunes old snapshots.
func (e *Engine) Snapshot() (string, error) {
	if e.writer == nil {
		return "", nil
	}
	e.snapshotMu.Lock()
	defer e.snapshotMu.Unlock()
	entries, gen := e.inverted.SnapshotAt()
	if e.lastSnapshot != "" && gen == e.snapshotGen {
		return e.lastSnapshot, nil
	}
	name, err := e.writer.Write(entries, gen)
	if err != nil {
		e.metrics.RecordSnapshot("error")
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	e.lastSnapshot = name
	e.snapshotGen = gen
	e.metrics.RecordSnapshot("ok")
	if err := segment.Prune(e.opts.DataDir, e.opts.SnapshotKeep); err != nil {
		e.logger.Warn("failed to prune snapshots", "error", err)
	}
	e.logger.Info("snapshot written", "snapshot", name, "terms", len(entries), "generation", gen)
	return name, nil
}

// RecomputeSimilarity rebuilds every similarity record.
func (e *Engine) RecomputeSimilarity(ctx context.Context) (similarity.Report, error) {
	e.simMu.Lock()
	defer e.simMu.Unlock()
	pending := e.takeDirty()
	report, err := e.similarity.Recompute(ctx, e.forward.All())
	e.recordSimilarity("full", report, err)
	if err != nil {
		e.markDirty(pending...)
		return report, err
	}
	e.notify(ctx, ingestion.CompleteSuggestions, nil)
	return report, nil
}

// RefreshSimilarity updates the records affected by documents changed since
// the previous pass. It reports false when there was nothing to do.
func (e *Engine) RefreshSimilarity(ctx context.Context) (similarity.Report, bool, error) {
	e.simMu.Lock()
	defer e.simMu.Unlock()
	changed := e.takeDirty()
	if len(changed) == 0 {
		return similarity.Report{}, false, nil
	}
	report, err := e.similarity.Update(ctx, e.forward.All(), changed)
	e.recordSimilarity("incremental", report, err)
	if err != nil {
		e.markDirty(changed...)
		return report, true, err
	}
	e.notify(ctx, ingestion.CompleteSuggestions, nil)
	return report, true, nil
}

func (e *Engine) recordSimilarity(kind string, r similarity.Report, err error) {
	status := "ok"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "canceled"
	case err != nil:
		status = "error"
	}
	e.metrics.RecordSimilarity(kind, status, r.Elapsed, r.FailedPairs)
}

type Stats struct {
	Documents         int    `json:"documents"`
	Vocabulary        int    `json:"vocabulary"`
	Generation        uint64 `json:"generation"`
	SuggestionRecords int    `json:"suggestion_records"`
	PendingSimilarity int    `json:"pending_similarity"`
	LastSnapshot      string `json:"last_snapshot,omitempty"`
}

func (e *Engine) Stats() Stats {
	e.dirtyMu.Lock()
	pending := len(e.dirty)
	e.dirtyMu.Unlock()
	e.snapshotMu.Lock()
	last := e.lastSnapshot
	e.snapshotMu.Unlock()
	return Stats{
		Documents:         e.forward.Len(),
		Vocabulary:        e.inverted.VocabularySize(),
		Generation:        e.inverted.Generation(),
		SuggestionRecords: e.similarity.Len(),
		PendingSimilarity: pending,
		LastSnapshot:      last,
	}
}

// StartMaintenanceLoop periodically snapshots the index and refreshes the
// similarity records of changed documents until ctx is cancelled. A
// non-positive interval disables that task. The returned channel is closed
// when the loop has exited.
func (e *Engine) StartMaintenanceLoop(ctx context.Context, snapshotEvery, similarityEvery time.Duration) <-chan struct{} {
	done := make(chan struct{})
	snapC, stopSnap := tick(snapshotEvery)
	simC, stopSim := tick(similarityEvery)
	go func() {
		defer close(done)
		defer stopSnap()
		defer stopSim()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("maintenance loop stopping")
				return
			case <-snapC:
				if _, err := e.Snapshot(); err != nil {
					e.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-simC:
				if _, _, err := e.RefreshSimilarity(ctx); err != nil && ctx.Err() == nil {
					e.logger.Error("similarity refresh failed", "error", err)
				}
			}
		}
	}()
	return done
}

func tick(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Close writes a final snapshot.
func (e *Engine) Close() error {
	if _, err := e.Snapshot(); err != nil {
		return fmt.Errorf("final snapshot: %w", err)
	}
	return nil
}
