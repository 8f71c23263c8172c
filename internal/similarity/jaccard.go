package similarity

import (
	"container/heap"
	"maps"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
	"github.com/RoaringBitmap/roaring/v2"
)

// Jaccard returns |a ∩ b| / |a ∪ b|, or 0 when both sets are empty.
func Jaccard(a, b *roaring.Bitmap) float64 {
	inter := a.AndCardinality(b)
	union := a.GetCardinality() + b.GetCardinality() - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// corpus holds one bitmap per document over term ids assigned from the
// sorted vocabulary.
type corpus struct {
	ids  []string
	sets []*roaring.Bitmap
	pos  map[string]int
}

func newCorpus(docs map[string]index.ForwardIndex) *corpus {
	vocab := make(map[string]struct{})
	for _, fi := range docs {
		for term, count := range fi {
			if count > 0 {
				vocab[term] = struct{}{}
			}
		}
	}
	termIDs := make(map[string]uint32, len(vocab))
	for i, term := range slices.Sorted(maps.Keys(vocab)) {
		termIDs[term] = uint32(i)
	}

	ids := slices.Sorted(maps.Keys(docs))
	c := &corpus{
		ids:  ids,
		sets: make([]*roaring.Bitmap, len(ids)),
		pos:  make(map[string]int, len(ids)),
	}
	for i, id := range ids {
		bm := roaring.New()
		for term, count := range docs[id] {
			if count > 0 {
				bm.Add(termIDs[term])
			}
		}
		bm.RunOptimize()
		c.sets[i] = bm
		c.pos[id] = i
	}
	return c
}

// topK keeps the best k suggestions; the root is the weakest entry.
type topK struct {
	k     int
	items suggestionHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, items: make(suggestionHeap, 0, k+1)}
}

func (t *topK) offer(s Suggestion) {
	heap.Push(&t.items, s)
	if t.items.Len() > t.k {
		heap.Pop(&t.items)
	}
}

// sorted drains the heap, best first.
func (t *topK) sorted() []Suggestion {
	out := make([]Suggestion, t.items.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.items).(Suggestion)
	}
	return out
}

type suggestionHeap []Suggestion

func (h suggestionHeap) Len() int { return len(h) }

func (h suggestionHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocumentID > h[j].DocumentID
}

func (h suggestionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *suggestionHeap) Push(x any) {
	*h = append(*h, x.(Suggestion))
}

func (h *suggestionHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
