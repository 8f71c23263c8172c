package index

// ForwardIndex maps a term to its occurrence count within one document.
type ForwardIndex map[string]int

// Total returns the number of token occurrences in the document.
func (f ForwardIndex) Total() int {
	total := 0
	for _, c := range f {
		total += c
	}
	return total
}

type Posting struct {
	DocID string `json:"doc_id"`
	Count int    `json:"count"`
}

type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}

// Summary describes the outcome of indexing one document.
type Summary struct {
	DocumentID     string `json:"document_id"`
	DistinctTokens int    `json:"distinct_tokens"`
	TotalTokens    int    `json:"total_tokens"`
	DroppedKeys    int    `json:"dropped_keys,omitempty"`
	Replaced       bool   `json:"replaced"`
}
