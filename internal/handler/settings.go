package handler

import (
	"log/slog"
	"net/http"

	"github.com/yunseol/pyeongeo/internal/model"
)

type settingsResponse struct {
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	HasAPIKey bool   `json:"has_api_key"`
}

// handleGetSettings returns the user's stored connection settings. The API
// key itself is never echoed back.
func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	ms, err := h.store.GetModelSettings(user.ID)
	if err != nil {
		slog.Error("failed to get settings", "user", user.ID, "error", err)
		respondError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	respondJSON(w, http.StatusOK, settingsResponse{
		BaseURL:   ms.BaseURL,
		Model:     ms.Model,
		HasAPIKey: ms.APIKey != "",
	})
}

// handleSetSettings stores new connection settings. An empty api_key keeps
// the previously stored key so users can change the model without re-entering
// their key.
func (h *Handler) handleSetSettings(w http.ResponseWriter, r *http.Request) {
	var req model.ModelSettings
	if err := decode(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}

	user := model.UserFromContext(r.Context())
	if req.APIKey == "" {
		stored, err := h.store.GetModelSettings(user.ID)
		if err != nil {
			slog.Error("failed to get settings", "user", user.ID, "error", err)
			respondError(w, r, http.StatusInternalServerError, "SettingsSaveFailed")
			return
		}
		req.APIKey = stored.APIKey
	}

	if err := h.store.SetModelSettings(user.ID, req); err != nil {
		slog.Error("failed to save settings", "user", user.ID, "error", err)
		respondError(w, r, http.StatusInternalServerError, "SettingsSaveFailed")
		return
	}
	respondJSON(w, http.StatusOK, settingsResponse{
		BaseURL:   req.BaseURL,
		Model:     req.Model,
		HasAPIKey: req.APIKey != "",
	})
}
