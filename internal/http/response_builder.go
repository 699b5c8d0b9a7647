package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"zbudget/internal/core"
	"zbudget/internal/services"
	"zbudget/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps domain errors to HTTP statuses. Validation problems are the
// caller's fault; anything unmapped is a 500 with the detail kept out of the
// response body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, storage.ErrStaleVersion):
		status = http.StatusConflict
		message = err.Error()
	case isValidationError(err):
		status = http.StatusUnprocessableEntity
		message = err.Error()
	case errors.Is(err, errBadBody), errors.Is(err, core.ErrInvalidMonth):
		status = http.StatusBadRequest
		message = err.Error()
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}

	writeJSON(w, status, errorResponse{Error: message})
}

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidAmount,
		core.ErrNegativeAmount,
		core.ErrInvalidInterval,
		core.ErrInvalidFrequency,
		core.ErrInvalidType,
		core.ErrEmptyName,
		core.ErrEmptyCategory,
		core.ErrSignMismatch,
		core.ErrMissingRuleID,
		core.ErrZeroDate,
		core.ErrEndBeforeStart,
		services.ErrCategoryNotInBudget,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
