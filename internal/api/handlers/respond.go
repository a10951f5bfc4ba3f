package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	middleware "github.com/markdave123-py/contexta-chat/internal/api/middlewares"
	"github.com/markdave123-py/contexta-chat/internal/core"
	"github.com/markdave123-py/contexta-chat/internal/services"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses. Internal details are
// only exposed for caller errors.
func writeError(w http.ResponseWriter, log *slog.Logger, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{err.Error()})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{"not found"})
	case errors.Is(err, core.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{"already exists"})
	case errors.Is(err, services.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody{"invalid credentials"})
	case core.IsTransient(err):
		log.Warn("request failed on a dependency", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{"temporarily unavailable, please retry"})
	default:
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{"internal error"})
	}
}

// uuidParam reads a path parameter and checks it is a UUID.
func uuidParam(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", core.Invalidf("%s must be a UUID", name)
	}
	return id.String(), nil
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return core.Invalidf("invalid request body")
	}
	return nil
}

func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{"unauthorized"})
	}
	return id, ok
}
