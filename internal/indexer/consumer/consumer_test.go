package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	events []kafka.Event
	// failures is the number of publishes rejected before one succeeds.
	failures int
	attempts int
}

func (f *fakeProducer) Publish(_ context.Context, event kafka.Event) error {
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("broker unavailable")
	}
	f.events = append(f.events, event)
	return nil
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func newEngine(t *testing.T, replica bool, st store.Store, src indexer.Source, n indexer.Notifier) *indexer.Engine {
	t.Helper()
	opts := indexer.DefaultOptions()
	opts.Tokenizer = tokenizer.Options{MinTokenLength: 1}
	opts.Replica = replica
	e, err := indexer.NewEngine(opts, indexer.Deps{Source: src, Store: st, Notifier: n})
	require.NoError(t, err)
	return e
}

func TestHandleIngest(t *testing.T) {
	src := ingestion.NewMemorySource(map[string]string{"D1": "the cat sat", "D2": ""})
	e := newEngine(t, false, store.NewMemory(), src, nil)
	handle := HandleIngest(e)
	ctx := context.Background()

	require.NoError(t, handle(ctx, []byte("D1"), encode(t, ingestion.IngestEvent{DocumentID: "D1", Action: ingestion.ActionIndex})))
	assert.Equal(t, map[string]int{"D1": 1}, e.Postings("cat"))

	err := handle(ctx, []byte("D2"), encode(t, ingestion.IngestEvent{DocumentID: "D2", Action: ingestion.ActionIndex}))
	require.Error(t, err)
	assert.True(t, apperrors.IsSkippable(err))

	require.NoError(t, handle(ctx, nil, encode(t, ingestion.IngestEvent{DocumentID: "D1", Action: ingestion.ActionRemove})))
	assert.Empty(t, e.Postings("cat"))
	require.NoError(t, handle(ctx, nil, encode(t, ingestion.IngestEvent{DocumentID: "D1", Action: ingestion.ActionRemove})))

	err = handle(ctx, nil, []byte("{"))
	assert.True(t, apperrors.IsSkippable(err))
	err = handle(ctx, nil, encode(t, ingestion.IngestEvent{DocumentID: "D1", Action: "archive"}))
	assert.True(t, apperrors.IsSkippable(err))
}

func TestReplicaFollowsIndexCompleteEvents(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	prod := &fakeProducer{}
	notifier := NewNotifier(prod)
	notifier.now = func() time.Time { return time.Unix(0, 0) }

	src := ingestion.NewMemorySource(map[string]string{"D1": "the cat sat", "D2": "the cat ran"})
	primary := newEngine(t, false, st, src, notifier)
	replica := newEngine(t, true, st, nil, nil)
	follow := HandleIndexComplete(replica)

	handle := HandleIngest(primary)
	for _, id := range []string{"D1", "D2"} {
		require.NoError(t, handle(ctx, nil, encode(t, ingestion.IngestEvent{DocumentID: id, Action: ingestion.ActionIndex})))
	}
	_, err := primary.RecomputeSimilarity(ctx)
	require.NoError(t, err)
	require.NoError(t, primary.RemoveDocument(ctx, "D2"))

	require.Len(t, prod.events, 4)
	for _, ev := range prod.events {
		assert.Equal(t, completeKey, ev.Key)
		require.NoError(t, follow(ctx, nil, encode(t, ev.Value)))
	}

	res, err := replica.Query(ctx, "cat", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"D1"}, res.Documents)
	_, err = replica.SuggestionsFor("D2")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	// D1's record still names D2 until the next similarity refresh.
	peers, err := replica.SuggestionsFor("D1")
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "D2", peers[0].DocumentID)

	err = follow(ctx, nil, encode(t, ingestion.IndexCompleteEvent{Type: "bogus"}))
	assert.True(t, apperrors.IsSkippable(err))
}

func TestNotifierRetriesFailedPublish(t *testing.T) {
	prod := &fakeProducer{failures: 2}
	notifier := NewNotifier(prod)
	notifier.retry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	require.NoError(t, notifier.Notify(context.Background(), ingestion.CompleteIndexed, []string{"D1"}, 7))
	assert.Equal(t, 3, prod.attempts)
	require.Len(t, prod.events, 1)
	ev := prod.events[0].Value.(ingestion.IndexCompleteEvent)
	assert.Equal(t, []string{"D1"}, ev.DocumentIDs)
	assert.Equal(t, uint64(7), ev.Generation)

	prod = &fakeProducer{failures: 5}
	notifier = NewNotifier(prod)
	notifier.retry = resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	assert.Error(t, notifier.Notify(context.Background(), ingestion.CompleteRemoved, []string{"D1"}, 8))
	assert.Empty(t, prod.events)
}
