package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/spell"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/searcher/ranker"
)

func newLoadedEngine(b *testing.B, n int) *indexer.Engine {
	b.Helper()
	e, err := indexer.NewEngine(indexer.DefaultOptions(), indexer.Deps{})
	if err != nil {
		b.Fatal(err)
	}
	for id, fi := range syntheticCorpus(n) {
		if _, err := e.Apply(id, fi); err != nil {
			b.Fatal(err)
		}
	}
	return e
}

// BenchmarkQuery measures end-to-end query resolution for exact and
// misspelled queries.
func BenchmarkQuery(b *testing.B) {
	e := newLoadedEngine(b, 5000)
	queries := []struct {
		name  string
		query string
	}{
		{"single", "whale"},
		{"multi", "whale harpoon captain"},
		{"misspelled", "wahle harpon"},
		{"unknown", "zzzzzz"},
		{"deep_page", "ship storm"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			page := 1
			if q.name == "deep_page" {
				page = 40
			}
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := e.Query(context.Background(), q.query, page, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkQueryParallel(b *testing.B) {
	e := newLoadedEngine(b, 5000)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := e.Query(context.Background(), "whale voyage", 1, 10); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkRank measures the union ranking for different candidate set sizes.
func BenchmarkRank(b *testing.B) {
	for _, numDocs := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("docs_%d", numDocs), func(b *testing.B) {
			postings := map[string]map[string]int{"a": {}, "b": {}}
			for i := 0; i < numDocs; i++ {
				postings["a"][fmt.Sprintf("doc-%d", i)] = i%10 + 1
				if i%2 == 0 {
					postings["b"][fmt.Sprintf("doc-%d", i)] = i%3 + 1
				}
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				ranked := ranker.Rank(ranker.Union(postings))
				_ = ranker.Paginate(ranked, 1, 10)
			}
		})
	}
}

func BenchmarkSpellCorrect(b *testing.B) {
	c := spell.New(spell.DefaultMaxDistance)
	for _, w := range vocabulary {
		c.AddTerm(w)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.Correct("harpon")
	}
}
