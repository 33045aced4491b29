package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yunseol/pyeongeo/internal/i18n"
	"github.com/yunseol/pyeongeo/internal/session"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// respondError sends a localized error message as {"error": "..."}.
func respondError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	respondJSON(w, status, map[string]string{"error": i18n.T(r.Context(), msgID)})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// respondSessionError maps session-layer errors to HTTP responses.
func respondSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrWrongStep):
		respondError(w, r, http.StatusConflict, "WrongStep")
	case errors.Is(err, session.ErrNoSource):
		respondError(w, r, http.StatusConflict, "NoSource")
	case errors.Is(err, session.ErrUnknownStudent):
		respondError(w, r, http.StatusNotFound, "UnknownStudent")
	case errors.Is(err, session.ErrUnknownSubject):
		respondError(w, r, http.StatusBadRequest, "UnknownSubject")
	case errors.Is(err, session.ErrNoSelection):
		respondError(w, r, http.StatusBadRequest, "NoSelection")
	case errors.Is(err, session.ErrNoComment):
		respondError(w, r, http.StatusBadRequest, "NoComment")
	case errors.Is(err, session.ErrStudentBusy):
		respondError(w, r, http.StatusConflict, "StudentBusy")
	case errors.Is(err, session.ErrBulkRunning):
		respondError(w, r, http.StatusConflict, "BulkRunning")
	case errors.Is(err, session.ErrNotReady):
		respondError(w, r, http.StatusConflict, "NotReady")
	default:
		slog.Error("session operation failed", "error", err)
		respondError(w, r, http.StatusInternalServerError, "InternalError")
	}
}
