package upload

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"scorio/backend/internal/middleware"
)

// uploadFailedMessage is recorded on the job when its upload never produced a
// stored input.
const uploadFailedMessage = "upload failed"

// JobAdvancer moves an uploading job forward once its input landed, or to
// failed when it never will. Implemented by the job service.
type JobAdvancer interface {
	AttachInput(ctx context.Context, id, inputRef string) error
	FailInput(ctx context.Context, id, reason string) error
}

type Handler struct {
	ingestor *Ingestor
	jobs     JobAdvancer
	hub      *Hub
	maxBytes int64
}

func NewHandler(ingestor *Ingestor, jobs JobAdvancer, hub *Hub, maxUploadMB int64) *Handler {
	return &Handler{
		ingestor: ingestor,
		jobs:     jobs,
		hub:      hub,
		maxBytes: maxUploadMB << 20,
	}
}

// Upload handles POST /jobs/upload?filename=&jobId=. The body is the raw file
// bytes. A successful write always yields 201 with the stored reference; if a
// jobId was supplied, advancing that job is a separate failure domain whose
// outcome the client observes on the job record, not here.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		h.writeError(ctx, w, "BAD_REQUEST", "filename query parameter is required", http.StatusBadRequest)
		return
	}
	jobID := r.URL.Query().Get("jobId")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	inputRef, err := h.ingestor.Ingest(filename, r.ContentLength, r.Body, jobID)
	if err != nil {
		if errors.Is(err, ErrMissingFilename) {
			h.writeError(ctx, w, "BAD_REQUEST", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "failed to store upload", "filename", filename, "error", err)
		if jobID != "" {
			if failErr := h.jobs.FailInput(ctx, jobID, uploadFailedMessage); failErr != nil {
				slog.ErrorContext(ctx, "failed to record upload failure", "job_id", jobID, "error", failErr)
			}
		}
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to save file", http.StatusInternalServerError)
		return
	}

	if jobID != "" {
		if err := h.jobs.AttachInput(ctx, jobID, inputRef); err != nil {
			// The bytes landed; the job just did not progress. Observable via
			// the job record.
			if errors.Is(err, sql.ErrNoRows) {
				slog.WarnContext(ctx, "upload stored for unknown job", "job_id", jobID, "input_ref", inputRef)
			} else {
				slog.ErrorContext(ctx, "upload stored but job not advanced", "job_id", jobID, "input_ref", inputRef, "error", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]string{"inputReference": inputRef}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Progress handles GET /jobs/{id}/progress as an SSE stream of upload
// percentages. Advisory only; the stream closes at 100%.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.hub.Subscribe(id)
	defer cancel()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case percent := <-ch:
			fmt.Fprintf(w, "event: progress\ndata: %d\n\n", percent)
			flusher.Flush()
			if percent >= 100 {
				return
			}
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
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
