package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/logger"
)

const maxBodyBytes = 80 << 20

// DocumentPublisher is satisfied by *publisher.Publisher.
type DocumentPublisher interface {
	Submit(ctx context.Context, req *ingestion.SubmitRequest) (*ingestion.SubmitResponse, error)
	Withdraw(ctx context.Context, docID string) (*ingestion.SubmitResponse, error)
}

type Handler struct {
	publisher DocumentPublisher
	logger    *slog.Logger
}

func New(pub DocumentPublisher) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Register mounts the ingestion routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Submit)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.Withdraw)
	mux.HandleFunc("GET /health", h.Health)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateSubmitRequest(&req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	resp, err := h.publisher.Submit(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"doc_id", req.DocumentID,
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("document submitted", "doc_id", resp.DocumentID, "status", resp.Status)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	docID := r.PathValue("id")
	if err := validator.ValidateDocumentID(docID); err != nil {
		h.writeValidationError(w, err)
		return
	}
	resp, err := h.publisher.Withdraw(ctx, docID)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		if statusCode == http.StatusNotFound {
			h.writeError(w, statusCode, "document not found")
			return
		}
		log.Error("withdraw failed", "doc_id", docID, "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, "withdraw failed")
		return
	}
	log.Info("document withdrawn", "doc_id", docID)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
