// Package ingestion defines the request/response types and Kafka event schemas
// used between the ingestion service, the indexer and the searcher replicas.
package ingestion

import "time"

const (
	ActionIndex  = "index"
	ActionRemove = "remove"
)

// SubmitRequest is the JSON body accepted by the ingestion HTTP endpoint.
type SubmitRequest struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

// SubmitResponse is returned to the caller after a request is accepted.
type SubmitResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// IngestEvent asks the indexer to index or remove a document. The text is
// read from the document source, not carried in the event.
type IngestEvent struct {
	DocumentID  string    `json:"document_id"`
	Action      string    `json:"action"`
	RequestedAt time.Time `json:"requested_at"`
}

const (
	CompleteIndexed     = "indexed"
	CompleteRemoved     = "removed"
	CompleteSuggestions = "suggestions"
)

// IndexCompleteEvent tells searcher replicas which documents changed so they
// can reload forward indexes or similarity records from the store.
type IndexCompleteEvent struct {
	Type        string    `json:"type"`
	DocumentIDs []string  `json:"document_ids"`
	Generation  uint64    `json:"generation"`
	At          time.Time `json:"at"`
}
