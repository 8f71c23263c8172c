// Package resolver answers free-text queries against the inverted index:
// it tokenizes the query, corrects unknown tokens against the vocabulary,
// unions the postings of the resolved tokens, ranks and paginates.
package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/searcher/ranker"
)

// Index is the read side of the inverted index.
type Index interface {
	Read(fn func(index.View))
}

// Speller maps an unknown token to its closest vocabulary word.
type Speller interface {
	Correct(word string) (string, int, bool)
}

type Request struct {
	Text     string
	Page     int
	PageSize int
}

type Result struct {
	Query         string            `json:"query"`
	Documents     []string          `json:"documents"`
	Total         int               `json:"total"`
	ElapsedMs     float64           `json:"elapsed_ms"`
	Substitutions map[string]string `json:"substitutions"`
	Tokens        []string          `json:"tokens"`
	Page          int               `json:"page"`
	PageSize      int               `json:"page_size"`
	TotalPages    int               `json:"total_pages"`
}

type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

type Resolver struct {
	tok     tokenizer.Tokenizer
	index   Index
	speller Speller
	opts    Options
	logger  *slog.Logger
}

func New(tok tokenizer.Tokenizer, ix Index, speller Speller, opts Options) *Resolver {
	if opts.DefaultPageSize < 1 {
		opts.DefaultPageSize = 10
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = opts.DefaultPageSize
	}
	return &Resolver{
		tok:     tok,
		index:   ix,
		speller: speller,
		opts:    opts,
		logger:  slog.Default().With("component", "query-resolver"),
	}
}

// Normalize applies the paging defaults: page < 1 becomes 1, a missing page
// size becomes the default, and oversized pages are clamped.
func (r *Resolver) Normalize(req Request) Request {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = r.opts.DefaultPageSize
	}
	if req.PageSize > r.opts.MaxPageSize {
		req.PageSize = r.opts.MaxPageSize
	}
	return req
}

// Terms returns the distinct query tokens in first-occurrence order.
func (r *Resolver) Terms(text string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, tok := range r.tok.Tokenize(text) {
		if !index.ValidKey(tok.Term) {
			continue
		}
		if _, dup := seen[tok.Term]; dup {
			continue
		}
		seen[tok.Term] = struct{}{}
		terms = append(terms, tok.Term)
	}
	return terms
}

// Resolve runs the query. A query without usable tokens and a page past the
// last result both produce an empty, successful result.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	req = r.Normalize(req)
	result := &Result{
		Query:         req.Text,
		Documents:     []string{},
		Substitutions: map[string]string{},
		Tokens:        []string{},
		Page:          req.Page,
		PageSize:      req.PageSize,
	}

	terms := r.Terms(req.Text)
	if len(terms) == 0 {
		result.ElapsedMs = elapsedMs(start)
		return result, nil
	}

	postingsPerTerm := make(map[string]map[string]int, len(terms))
	r.index.Read(func(v index.View) {
		for _, term := range terms {
			resolved := term
			if !v.Has(term) && r.speller != nil {
				if corrected, _, ok := r.speller.Correct(term); ok && v.Has(corrected) {
					resolved = corrected
					result.Substitutions[term] = corrected
				}
			}
			if _, done := postingsPerTerm[resolved]; done {
				continue
			}
			result.Tokens = append(result.Tokens, resolved)
			postings := make(map[string]int)
			v.Each(resolved, func(docID string, count int) {
				postings[docID] = count
			})
			postingsPerTerm[resolved] = postings
		}
	})

	ranked := ranker.Rank(ranker.Union(postingsPerTerm))
	for _, doc := range ranker.Paginate(ranked, req.Page, req.PageSize) {
		result.Documents = append(result.Documents, doc.DocID)
	}
	result.Total = len(ranked)
	result.TotalPages = ranker.TotalPages(result.Total, req.PageSize)
	result.ElapsedMs = elapsedMs(start)

	r.logger.Debug("query resolved",
		"query", req.Text,
		"tokens", result.Tokens,
		"substitutions", len(result.Substitutions),
		"total", result.Total,
		"page", req.Page,
	)
	return result, nil
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
