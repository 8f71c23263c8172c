package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	submitted []ingestion.SubmitRequest
	withdrawn []string
	err       error
}

func (f *fakePublisher) Submit(_ context.Context, req *ingestion.SubmitRequest) (*ingestion.SubmitResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = append(f.submitted, *req)
	return &ingestion.SubmitResponse{DocumentID: req.DocumentID, Status: "queued"}, nil
}

func (f *fakePublisher) Withdraw(_ context.Context, docID string) (*ingestion.SubmitResponse, error) {
	if docID == "missing" {
		return nil, apperrors.NotFound(docID)
	}
	f.withdrawn = append(f.withdrawn, docID)
	return &ingestion.SubmitResponse{DocumentID: docID, Status: "removing"}, nil
}

func newServer(pub *fakePublisher) *httptest.Server {
	mux := http.NewServeMux()
	New(pub).Register(mux)
	return httptest.NewServer(mux)
}

func TestSubmitAccepted(t *testing.T) {
	pub := &fakePublisher{}
	srv := newServer(pub)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/documents", "application/json",
		strings.NewReader(`{"document_id":"D1","title":"Cats","text":"the cat sat"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body ingestion.SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "D1", body.DocumentID)
	require.Len(t, pub.submitted, 1)
	assert.Equal(t, "the cat sat", pub.submitted[0].Text)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	srv := newServer(&fakePublisher{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/documents", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/documents", "application/json",
		strings.NewReader(`{"document_id":"D1","text":"   "}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "validation failed", body["error"])
	assert.Contains(t, body["fields"], "text")
}

func TestSubmitPublisherFailure(t *testing.T) {
	srv := newServer(&fakePublisher{err: apperrors.New(apperrors.ErrStoreUnavailable, 503, "down")})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/documents", "application/json",
		strings.NewReader(`{"document_id":"D1","text":"words"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWithdraw(t *testing.T) {
	pub := &fakePublisher{}
	srv := newServer(pub)
	defer srv.Close()

	del := func(id string) int {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/documents/"+id, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusAccepted, del("D1"))
	assert.Equal(t, http.StatusNotFound, del("missing"))
	assert.Equal(t, http.StatusBadRequest, del("prototype"))
	assert.Equal(t, []string{"D1"}, pub.withdrawn)
}
