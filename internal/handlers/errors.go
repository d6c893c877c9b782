package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"fixnote/internal/contextutil"
	"fixnote/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleServiceError maps service errors to appropriate HTTP status codes and responses.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)

	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		logger.WarnContext(ctx, "validation failed", "error", err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Validation error: %s", validationErr.Error()))
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid input")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "Note not found")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, service.ErrSemanticSearchForbidden):
		writeError(w, http.StatusForbidden, "Semantic search is not available on your plan")
	case errors.Is(err, service.ErrSearchTimeout):
		logger.WarnContext(ctx, "search timed out", "error", err)
		writeError(w, http.StatusGatewayTimeout, "Search timed out")
	case errors.Is(err, service.ErrEmbeddingUnavailable):
		logger.ErrorContext(ctx, "embedding service unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Search unavailable")
	case errors.Is(err, service.ErrStorageUnavailable):
		logger.ErrorContext(ctx, "storage unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable")
	case errors.Is(err, service.ErrIndexInconsistent):
		logger.ErrorContext(ctx, "lexical index rejected write", "error", err)
		writeError(w, http.StatusInternalServerError, "Note could not be indexed, nothing was saved")
	default:
		logger.ErrorContext(ctx, "service error", "error", err)
		writeError(w, http.StatusInternalServerError, defaultMsg)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body, rejecting unknown fields and bodies over 1 MiB.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
