package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInvalidInput, http.StatusTeapot, "odd"), http.StatusTeapot},
		{"wrapped not found", fmt.Errorf("lookup: %w", ErrDocumentNotFound), http.StatusNotFound},
		{"empty content", ErrEmptyContent, http.StatusUnprocessableEntity},
		{"reserved key", ErrReservedKey, http.StatusBadRequest},
		{"store unavailable", ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"timeout", fmt.Errorf("cache get: %w", ErrTimeout), http.StatusServiceUnavailable},
		{"unknown", context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("indexing: %w", NotFound("D9"))
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.Contains(t, err.Error(), `document "D9"`)

	var appErr *AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)

	assert.ErrorIs(t, Integrity("term %q missing", "cat"), ErrIntegrity)
}

func TestIsSkippable(t *testing.T) {
	assert.True(t, IsSkippable(EmptyContent("D1")))
	assert.True(t, IsSkippable(ErrReservedKey))
	assert.True(t, IsSkippable(fmt.Errorf("decode: %w", ErrInvalidInput)))
	assert.False(t, IsSkippable(ErrStoreUnavailable))
	assert.False(t, IsSkippable(ErrTimeout))
}
