// Package spell corrects query terms against the index vocabulary using the
// symmetric-delete method: every vocabulary word is registered under all of
// its deletions up to the maximum edit distance, so candidate lookup costs a
// handful of map probes instead of a scan of the vocabulary. Candidates are
// then verified with a bounded Levenshtein distance.
package spell

import (
	"sync"
)

const DefaultMaxDistance = 2

type Corrector struct {
	mu          sync.RWMutex
	maxDistance int
	words       map[string]struct{}
	deletes     map[string]map[string]struct{}
}

func New(maxDistance int) *Corrector {
	if maxDistance < 0 {
		maxDistance = 0
	}
	return &Corrector{
		maxDistance: maxDistance,
		words:       make(map[string]struct{}),
		deletes:     make(map[string]map[string]struct{}),
	}
}

func (c *Corrector) MaxDistance() int {
	return c.maxDistance
}

// AddTerm registers a vocabulary word.
func (c *Corrector) AddTerm(word string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(word)
}

func (c *Corrector) addLocked(word string) {
	if _, exists := c.words[word]; exists {
		return
	}
	c.words[word] = struct{}{}
	for del := range variants(word, c.maxDistance) {
		originals, ok := c.deletes[del]
		if !ok {
			originals = make(map[string]struct{})
			c.deletes[del] = originals
		}
		originals[word] = struct{}{}
	}
}

// RemoveTerm drops a word and all of its deletion variants.
func (c *Corrector) RemoveTerm(word string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.words[word]; !exists {
		return
	}
	delete(c.words, word)
	for del := range variants(word, c.maxDistance) {
		if originals, ok := c.deletes[del]; ok {
			delete(originals, word)
			if len(originals) == 0 {
				delete(c.deletes, del)
			}
		}
	}
}

// ResetTerms replaces the whole vocabulary.
func (c *Corrector) ResetTerms(words []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.words = make(map[string]struct{}, len(words))
	c.deletes = make(map[string]map[string]struct{}, len(words)*4)
	for _, w := range words {
		c.addLocked(w)
	}
}

func (c *Corrector) Contains(word string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.words[word]
	return ok
}

func (c *Corrector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.words)
}

// Correct returns the closest vocabulary word within the maximum distance.
// Ties go to the smaller distance, then to the lexicographically smaller
// word. A word already in the vocabulary is returned unchanged.
func (c *Corrector) Correct(word string) (string, int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.words[word]; ok {
		return word, 0, true
	}
	if c.maxDistance == 0 || word == "" {
		return "", 0, false
	}

	query := []rune(word)
	best, bestDist := "", c.maxDistance+1
	seen := make(map[string]struct{})
	for del := range variants(word, c.maxDistance) {
		for candidate := range c.deletes[del] {
			if _, dup := seen[candidate]; dup {
				continue
			}
			seen[candidate] = struct{}{}
			d := Distance(query, []rune(candidate), c.maxDistance)
			if d > c.maxDistance {
				continue
			}
			if d < bestDist || (d == bestDist && candidate < best) {
				best, bestDist = candidate, d
			}
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestDist, true
}

// variants returns word and every string obtained by deleting up to depth
// runes from it.
func variants(word string, depth int) map[string]struct{} {
	out := map[string]struct{}{word: {}}
	level := []string{word}
	for d := 0; d < depth; d++ {
		var next []string
		for _, w := range level {
			r := []rune(w)
			for i := range r {
				del := string(r[:i]) + string(r[i+1:])
				if _, exists := out[del]; exists {
					continue
				}
				out[del] = struct{}{}
				next = append(next, del)
			}
		}
		level = next
	}
	return out
}

// Distance is the Levenshtein distance between a and b, or limit+1 once it is
// known to exceed limit.
func Distance(a, b []rune, limit int) int {
	if diff := len(a) - len(b); diff > limit || -diff > limit {
		return limit + 1
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, curr[j])
		}
		if rowMin > limit {
			return limit + 1
		}
		prev, curr = curr, prev
	}
	if prev[len(b)] > limit {
		return limit + 1
	}
	return prev[len(b)]
}
