package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"scorio/backend/internal/middleware"
)

// listLimit caps GET /jobs to the most recent jobs, newest first.
const listLimit = 50

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// Create handles POST /jobs. A non-empty inputReference creates a queued job
// and triggers dispatch; an absent one creates an uploading job whose input
// the client supplies via the upload endpoint.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		InputRef string `json:"inputReference"`
	}
	// An empty body is a valid deferred-upload request.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	j, err := h.service.Create(ctx, req.InputRef)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create job", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]string{"jobId": j.ID}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// List handles GET /jobs: the most recent jobs, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobs, err := h.service.List(ctx, listLimit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	if jobs == nil {
		jobs = []Job{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(jobs); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Get handles GET /jobs/{id}: the full job record.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	j, err := h.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to get job", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(j); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Callback handles POST /jobs/{id}/callback, the AI service's terminal
// notification. Replays on a terminal job are acknowledged without change.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req struct {
		Status    string `json:"status"`
		OutputRef string `json:"outputReference"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	status := Status(req.Status)
	if status != StatusCompleted && status != StatusFailed {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid status", http.StatusBadRequest)
		return
	}

	cb := Callback{Status: status, OutputRef: req.OutputRef, Error: req.Error}
	if err := h.service.HandleCallback(ctx, id, cb); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, ErrConflict) {
			h.writeError(ctx, w, "CONFLICT", "Job cannot accept this callback", http.StatusConflict)
			return
		}
		slog.ErrorContext(ctx, "failed to apply callback", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]bool{"ok": true}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
