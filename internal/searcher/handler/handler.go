package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/searcher/resolver"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/metrics"
)

// SearchEngine is the read side of indexer.Engine.
type SearchEngine interface {
	Query(ctx context.Context, text string, page, pageSize int) (*resolver.Result, error)
	Normalize(page, pageSize int) (int, int)
	Generation() uint64
	SuggestionsFor(docID string) ([]similarity.Suggestion, error)
	ForwardIndex(docID string) (index.ForwardIndex, error)
	Stats() indexer.Stats
}

type Handler struct {
	engine  SearchEngine
	cache   *cache.QueryCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds the handler. queryCache and m may be nil.
func New(engine SearchEngine, queryCache *cache.QueryCache, m *metrics.Metrics) *Handler {
	return &Handler{
		engine:  engine,
		cache:   queryCache,
		metrics: m,
		logger:  slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/suggestions", h.Suggestions)
	mux.HandleFunc("GET /api/v1/documents/{id}/suggestions", h.Suggestions)
	mux.HandleFunc("GET /api/v1/documents/{id}/index", h.DocumentIndex)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
}

// Search answers GET /api/v1/search?q=&page=&page_size=. A blank query is a
// successful empty page.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	page, err := intParam(r, "page")
	if err != nil {
		h.writeError(w, err)
		return
	}
	pageSize, err := intParam(r, "page_size")
	if err != nil {
		h.writeError(w, err)
		return
	}
	page, pageSize = h.engine.Normalize(page, pageSize)

	cacheStatus := "disabled"
	var result *resolver.Result
	if h.cache != nil {
		key := cache.Key{Query: query, Page: page, PageSize: pageSize, Generation: h.engine.Generation()}
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, key, func() (*resolver.Result, error) {
			return h.engine.Query(ctx, query, page, pageSize)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = h.engine.Query(ctx, query, page, pageSize)
	}
	if err != nil {
		h.metrics.RecordQuery("error", cacheStatus, time.Since(start), 0, 0)
		log.Error("search failed", "query", query, "error", err)
		h.writeError(w, err)
		return
	}

	// Cached pages are shared between callers and keyed by the normalized
	// query, so the echoed text is set on a copy.
	out := *result
	out.Query = query

	resultType := "results"
	if out.Total == 0 {
		resultType = "empty"
	}
	h.metrics.RecordQuery(resultType, cacheStatus, time.Since(start), out.Total, len(out.Substitutions))
	log.Info("search completed",
		"query", query,
		"total", out.Total,
		"returned", len(out.Documents),
		"page", out.Page,
		"substitutions", len(out.Substitutions),
		"cache", cacheStatus,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, &out)
}

type suggestionsResponse struct {
	DocumentID  string                  `json:"document_id"`
	Suggestions []similarity.Suggestion `json:"suggestions"`
}

// Suggestions answers both GET /api/v1/suggestions?id= and
// GET /api/v1/documents/{id}/suggestions.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	if docID == "" {
		docID = r.URL.Query().Get("id")
	}
	if docID == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'id' is required"))
		return
	}
	peers, err := h.engine.SuggestionsFor(docID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, suggestionsResponse{DocumentID: docID, Suggestions: peers})
}

type documentIndexResponse struct {
	DocumentID string             `json:"document_id"`
	Tokens     index.ForwardIndex `json:"tokens"`
	Distinct   int                `json:"distinct_tokens"`
	Total      int                `json:"total_tokens"`
}

func (h *Handler) DocumentIndex(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	fi, err := h.engine.ForwardIndex(docID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, documentIndexResponse{
		DocumentID: docID,
		Tokens:     fi,
		Distinct:   len(fi),
		Total:      fi.Total(),
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"circuit":  h.cache.CircuitState().String(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// intParam parses an optional integer query parameter; absent means 0.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%s must be an integer", name)
	}
	return v, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to its HTTP status. Server-side failures are reported
// without their cause.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = http.StatusServiceUnavailable
	}
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
