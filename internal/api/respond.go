package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/analyst/internal/analysis"
	"github.com/sells-group/analyst/internal/store"
	"github.com/sells-group/analyst/internal/worker"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v
// unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid request body")
	return false
}

// writeServiceError maps service sentinels to status codes. Anything else
// is logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Analysis not found")
	case errors.Is(err, analysis.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, invalidInputMessage(err))
	case errors.Is(err, analysis.ErrBusy):
		writeError(w, http.StatusConflict, "Analysis is already processing")
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "Too many analyses in progress, retry shortly")
	default:
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// invalidInputMessage returns the context wrapped around ErrInvalidInput.
func invalidInputMessage(err error) string {
	full := err.Error()
	msg := strings.TrimSuffix(full, ": "+analysis.ErrInvalidInput.Error())
	if msg == full || msg == "" {
		return "invalid input"
	}
	return msg
}
