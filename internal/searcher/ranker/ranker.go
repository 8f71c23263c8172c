// Package ranker turns per-term postings into an ordered result list.
package ranker

import (
	"sort"
)

type ScoredDoc struct {
	DocID string `json:"doc_id"`
	Score int    `json:"score"`
}

// Union sums, per document, the counts of every matched term. Any document
// holding at least one term is a candidate.
func Union(postingsPerTerm map[string]map[string]int) map[string]int {
	scores := make(map[string]int)
	for _, postings := range postingsPerTerm {
		for docID, count := range postings {
			scores[docID] += count
		}
	}
	return scores
}

// Rank orders candidates by score descending, then document id ascending.
func Rank(scores map[string]int) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{
			DocID: docID,
			Score: score,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	return result
}

// Paginate returns the 1-based page of docs. Pages past the end are empty.
func Paginate(docs []ScoredDoc, page, pageSize int) []ScoredDoc {
	if page < 1 || pageSize < 1 {
		return []ScoredDoc{}
	}
	start := (page - 1) * pageSize
	if start >= len(docs) {
		return []ScoredDoc{}
	}
	end := min(start+pageSize, len(docs))
	return docs[start:end]
}

// TotalPages is ceil(total / pageSize).
func TotalPages(total, pageSize int) int {
	if pageSize < 1 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
