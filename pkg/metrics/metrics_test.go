package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordQuery(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordQuery("hit", "miss", 3*time.Millisecond, 4, 2)
	m.RecordQuery("zero_result", "hit", time.Millisecond, 0, 0)
	m.RecordQuery("error", "disabled", time.Millisecond, 0, 5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SpellCorrectionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestIndexAndSimilarityRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordIndexed("indexed")
	m.RecordIndexed("indexed")
	m.RecordIndexed("empty")
	m.RecordSnapshot("ok")
	m.SetIndexStats(3, 7, 12)
	m.RecordSimilarity("full", "ok", time.Second, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocsIndexedTotal.WithLabelValues("indexed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexSnapshotsTotal.WithLabelValues("ok")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.IndexVocabulary))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.IndexGeneration))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SimilarityFailedPairs))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordQuery("hit", "miss", time.Millisecond, 1, 1)
		m.RecordIndexed("indexed")
		m.RecordSnapshot("ok")
		m.SetIndexStats(1, 1, 1)
		m.RecordSimilarity("full", "ok", time.Second, 0)
	})
}
