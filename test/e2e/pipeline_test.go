// Package e2e runs the indexing pipeline in process: ingest events drive an
// indexer engine, its index-complete events drive a searcher replica, and the
// replica is queried over HTTP through the middleware chain and the Redis
// query cache.
package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/searcher/resolver"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bridge delivers published events straight to a message handler, standing
// in for the index-complete topic.
type bridge struct {
	t       *testing.T
	handler kafka.MessageHandler
}

func (b *bridge) Publish(ctx context.Context, event kafka.Event) error {
	data, err := json.Marshal(event.Value)
	require.NoError(b.t, err)
	return b.handler(ctx, []byte(event.Key), data)
}

type pipeline struct {
	source  *ingestion.MemorySource
	primary *indexer.Engine
	ingest  kafka.MessageHandler
	server  *httptest.Server
}

func newPipeline(t *testing.T, texts map[string]string) *pipeline {
	t.Helper()
	opts := indexer.DefaultOptions()
	opts.Tokenizer = tokenizer.Options{MinTokenLength: 1}
	st := store.NewMemory()

	replicaOpts := opts
	replicaOpts.Replica = true
	replica, err := indexer.NewEngine(replicaOpts, indexer.Deps{Store: st})
	require.NoError(t, err)

	source := ingestion.NewMemorySource(texts)
	notifier := consumer.NewNotifier(&bridge{t: t, handler: consumer.HandleIndexComplete(replica)})
	primary, err := indexer.NewEngine(opts, indexer.Deps{Source: source, Store: st, Notifier: notifier})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	mux := http.NewServeMux()
	handler.New(replica, cache.New(pkgredis.Wrap(rdb), time.Minute), nil).Register(mux)
	server := httptest.NewServer(middleware.Chain(mux, middleware.RequestID, middleware.Timeout(5*time.Second)))
	t.Cleanup(server.Close)

	return &pipeline{
		source:  source,
		primary: primary,
		ingest:  consumer.HandleIngest(primary),
		server:  server,
	}
}

func (p *pipeline) send(t *testing.T, docID, action string) {
	t.Helper()
	data, err := json.Marshal(ingestion.IngestEvent{DocumentID: docID, Action: action, RequestedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, p.ingest(context.Background(), []byte(docID), data))
}

func (p *pipeline) refresh(t *testing.T) {
	t.Helper()
	_, _, err := p.primary.RefreshSimilarity(context.Background())
	require.NoError(t, err)
}

func (p *pipeline) search(t *testing.T, q string) resolver.Result {
	t.Helper()
	resp, err := http.Get(p.server.URL + "/api/v1/search?q=" + url.QueryEscape(q))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
	var res resolver.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return res
}

func (p *pipeline) suggestions(t *testing.T, docID string) (int, []similarity.Suggestion) {
	t.Helper()
	resp, err := http.Get(p.server.URL + "/api/v1/documents/" + docID + "/suggestions")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Suggestions []similarity.Suggestion `json:"suggestions"`
	}
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp.StatusCode, body.Suggestions
}

func TestPipelineIndexSearchSuggest(t *testing.T) {
	p := newPipeline(t, map[string]string{
		"D1": "the cat sat",
		"D2": "the cat ran",
		"D3": "a dog barked",
	})
	for _, id := range []string{"D1", "D2", "D3"} {
		p.send(t, id, ingestion.ActionIndex)
	}
	p.refresh(t)

	res := p.search(t, "cat")
	assert.Equal(t, []string{"D1", "D2"}, res.Documents)

	res = p.search(t, "ctt")
	assert.Equal(t, map[string]string{"ctt": "cat"}, res.Substitutions)
	assert.Equal(t, []string{"D1", "D2"}, res.Documents)

	status, peers := p.suggestions(t, "D1")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, peers, 1)
	assert.Equal(t, "D2", peers[0].DocumentID)
	assert.InDelta(t, 0.5, peers[0].Score, 1e-9)

	// Re-indexing replaces the old version everywhere, including cached pages.
	p.source.Put("D1", "dog dog barked")
	p.send(t, "D1", ingestion.ActionIndex)
	p.refresh(t)

	assert.Equal(t, []string{"D2"}, p.search(t, "cat").Documents)
	assert.Equal(t, []string{"D1", "D3"}, p.search(t, "dog").Documents)
	_, peers = p.suggestions(t, "D1")
	require.Len(t, peers, 1)
	assert.Equal(t, "D3", peers[0].DocumentID)
	assert.InDelta(t, 2.0/3.0, peers[0].Score, 1e-9)
}

func TestPipelineRemoval(t *testing.T) {
	p := newPipeline(t, map[string]string{
		"D1": "the cat sat",
		"D2": "the cat ran",
	})
	p.send(t, "D1", ingestion.ActionIndex)
	p.send(t, "D2", ingestion.ActionIndex)
	p.refresh(t)
	require.Equal(t, []string{"D1", "D2"}, p.search(t, "cat").Documents)

	p.send(t, "D2", ingestion.ActionRemove)
	p.refresh(t)

	assert.Equal(t, []string{"D1"}, p.search(t, "cat").Documents)
	status, _ := p.suggestions(t, "D2")
	assert.Equal(t, http.StatusNotFound, status)
	status, peers := p.suggestions(t, "D1")
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, peers)
}

func TestPipelineOutOfRangePage(t *testing.T) {
	p := newPipeline(t, map[string]string{"D1": "the cat sat"})
	p.send(t, "D1", ingestion.ActionIndex)

	resp, err := http.Get(p.server.URL + "/api/v1/search?q=cat&page=9&page_size=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res resolver.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Empty(t, res.Documents)
	assert.Equal(t, 1, res.Total)
}
