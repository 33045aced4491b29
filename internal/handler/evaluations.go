package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yunseol/pyeongeo/internal/model"
)

type evaluationSummary struct {
	ID        int64     `json:"id"`
	FileName  string    `json:"file_name"`
	Subjects  []string  `json:"subjects"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleSaveEvaluation stores the session's current evaluation data so the
// plan can be reused without re-uploading the PDF.
func (h *Handler) handleSaveEvaluation(w http.ResponseWriter, r *http.Request) {
	sess := h.userSession(r.Context())
	data, err := sess.Data()
	if err != nil {
		respondSessionError(w, r, err)
		return
	}

	user := model.UserFromContext(r.Context())
	id, err := h.store.SaveEvaluation(user.ID, sess.FileName(), data)
	if err != nil {
		slog.Error("failed to save evaluation", "user", user.ID, "error", err)
		respondError(w, r, http.StatusInternalServerError, "SaveFailed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	evals, err := h.store.ListEvaluations(user.ID)
	if err != nil {
		slog.Error("failed to list evaluations", "user", user.ID, "error", err)
		respondError(w, r, http.StatusInternalServerError, "ListFailed")
		return
	}
	out := make([]evaluationSummary, 0, len(evals))
	for _, ev := range evals {
		out = append(out, evaluationSummary{
			ID:        ev.ID,
			FileName:  ev.FileName,
			Subjects:  ev.Data.Subjects,
			CreatedAt: ev.CreatedAt,
			UpdatedAt: ev.UpdatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleLoadEvaluation puts a saved plan back into the review step. There is
// no source text to re-analyze, so the snapshot reports can_reanalyze false.
func (h *Handler) handleLoadEvaluation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	user := model.UserFromContext(r.Context())
	ev, err := h.store.GetEvaluation(user.ID, id)
	if err != nil {
		slog.Error("failed to load evaluation", "user", user.ID, "id", id, "error", err)
		respondError(w, r, http.StatusInternalServerError, "LoadFailed")
		return
	}
	if ev == nil {
		respondError(w, r, http.StatusNotFound, "EvaluationNotFound")
		return
	}

	sess := h.userSession(r.Context())
	if err := sess.BeginReview(ev.Data, "", ev.FileName); err != nil {
		respondSessionError(w, r, err)
		return
	}
	h.respondState(w, sess)
}

func (h *Handler) handleDeleteEvaluation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	user := model.UserFromContext(r.Context())
	if err := h.store.DeleteEvaluation(user.ID, id); err != nil {
		slog.Error("failed to delete evaluation", "user", user.ID, "id", id, "error", err)
		respondError(w, r, http.StatusInternalServerError, "DeleteFailed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
