package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyContent     = errors.New("no indexable content")
	ErrDocumentNotFound = errors.New("document not found")
	ErrIntegrity        = errors.New("index integrity violation")
	ErrInvalidInput     = errors.New("invalid input")
	ErrReservedKey      = errors.New("reserved key")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// NotFound builds the error returned for lookups against an unknown document.
func NotFound(docID string) *AppError {
	return Newf(ErrDocumentNotFound, http.StatusNotFound, "document %q", docID)
}

// EmptyContent builds the skip signal for documents without text.
func EmptyContent(docID string) *AppError {
	return Newf(ErrEmptyContent, http.StatusUnprocessableEntity, "document %q has no plain-text content", docID)
}

// Integrity builds the error raised by consistency checks; callers are expected
// to rebuild the inverted index when they see it.
func Integrity(format string, args ...any) *AppError {
	return Newf(ErrIntegrity, http.StatusInternalServerError, format, args...)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrReservedKey):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsSkippable reports whether an ingestion failure should be logged and skipped
// rather than retried.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrEmptyContent) || errors.Is(err, ErrReservedKey) || errors.Is(err, ErrInvalidInput)
}
