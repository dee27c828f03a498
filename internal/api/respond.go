package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/basket/taskd/internal/task"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeTaskError maps the store's error taxonomy to HTTP statuses. Unknown
// errors are treated as internal.
func writeTaskError(w http.ResponseWriter, err error) {
	var notFound *task.NotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var (
		validation *task.ValidationError
		depMissing *task.DependencyNotFoundError
		bulkLimit  *task.BulkLimitExceededError
		bulkItem   *task.BulkItemError
	)
	if errors.As(err, &validation) || errors.As(err, &depMissing) ||
		errors.As(err, &bulkLimit) || errors.As(err, &bulkItem) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeError(w, http.StatusInternalServerError, "internal error")
}
