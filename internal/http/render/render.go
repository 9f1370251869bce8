// Package render writes JSON responses and maps domain errors to HTTP status codes.
package render

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrJamesThe3rd/ironyard/internal/listing"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Fail writes an error body with an explicit status and code.
func Fail(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, errorResponse{Error: code, Message: message})
}

// Error maps err onto the response. Unknown errors become a 500 with a
// generic message and are logged.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		Fail(w, status, code, "internal error")

		return
	}

	if status == http.StatusServiceUnavailable {
		slog.Warn("store unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
		Fail(w, status, code, "service temporarily unavailable, retry later")

		return
	}

	Fail(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, listing.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, listing.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, listing.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, "invalid_transition"
	case errors.Is(err, listing.ErrPreconditionFailed):
		return http.StatusPreconditionFailed, "precondition_failed"
	case errors.Is(err, listing.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, listing.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, listing.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	}

	return http.StatusInternalServerError, "internal"
}
