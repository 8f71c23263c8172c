// Package validator checks ingestion requests before anything is stored or
// published, and returns per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion"
)

const (
	maxDocumentIDLength = 255
	maxTitleLength      = 1024
	maxTextLength       = 64 << 20
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateDocumentID rejects ids that are empty, too long, contain control
// characters or collide with reserved keys.
func ValidateDocumentID(id string) error {
	if msg := documentIDProblem(id); msg != "" {
		return &ValidationError{Fields: map[string]string{"document_id": msg}}
	}
	return nil
}

func ValidateSubmitRequest(req *ingestion.SubmitRequest) error {
	errs := make(map[string]string)
	if msg := documentIDProblem(req.DocumentID); msg != "" {
		errs["document_id"] = msg
	}
	if len(req.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	if strings.TrimSpace(req.Text) == "" {
		errs["text"] = "text is required and must not be empty"
	} else if len(req.Text) > maxTextLength {
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	} else if !utf8.ValidString(req.Text) {
		errs["text"] = "text must be valid UTF-8"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func documentIDProblem(id string) string {
	switch {
	case strings.TrimSpace(id) == "":
		return "document id is required"
	case len(id) > maxDocumentIDLength:
		return fmt.Sprintf("document id must be at most %d characters", maxDocumentIDLength)
	case strings.ContainsFunc(id, unicode.IsControl):
		return "document id must not contain control characters"
	case !index.ValidKey(id):
		return "document id is reserved"
	}
	return ""
}
