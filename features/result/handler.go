package result

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"scorio/backend/internal/middleware"
)

type Handler struct {
	resolver *Resolver
}

func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// Get handles GET /results?path=, streaming the referenced artifact with its
// content-type and a disposition hint.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p := r.URL.Query().Get("path")
	if p == "" {
		h.writeError(ctx, w, "BAD_REQUEST", "path is required", http.StatusBadRequest)
		return
	}

	f, err := h.resolver.Resolve(p)
	if err != nil {
		if errors.Is(err, ErrInvalidPath) {
			h.writeError(ctx, w, "INVALID_PATH", "invalid path", http.StatusBadRequest)
			return
		}
		if errors.Is(err, fs.ErrNotExist) {
			h.writeError(ctx, w, "NOT_FOUND", "Result not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to resolve result", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	file, err := os.Open(f.Path)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open result", "path", f.Path, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to read result", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	if _, err := io.Copy(w, file); err != nil {
		slog.ErrorContext(ctx, "failed to stream result", "path", f.Path, "error", err)
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
