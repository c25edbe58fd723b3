package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mizutanik/kakeibo/internal/api/middleware"
	"github.com/mizutanik/kakeibo/internal/recordstore"
	"github.com/mizutanik/kakeibo/internal/session"
)

// SettingsHandler handles the user settings endpoints, chiefly the
// spreadsheet id the backend writes to.
type SettingsHandler struct {
	store recordstore.SettingsStore
	cache *session.Cache
	log   zerolog.Logger
}

// NewSettingsHandler creates a settings handler. cache may be nil.
func NewSettingsHandler(store recordstore.SettingsStore, cache *session.Cache, log zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{store: store, cache: cache, log: log}
}

// Get handles GET /api/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())

	s, err := h.store.GetSettings(r.Context(), sess.UserID)
	if errors.Is(err, recordstore.ErrNotFound) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"spreadsheet_id": ""})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read settings")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read settings")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"spreadsheet_id": s.SpreadsheetID})
}

// Put handles PUT /api/settings and stores the spreadsheet id in both
// the settings record and the local cache slot the resolver reads.
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpreadsheetID string `json:"spreadsheet_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.SpreadsheetID = strings.TrimSpace(req.SpreadsheetID)
	if req.SpreadsheetID == "" {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "spreadsheet_id is required")
		return
	}

	sess := middleware.SessionFrom(r.Context())
	settings := &recordstore.Settings{
		UserID:        sess.UserID,
		SpreadsheetID: req.SpreadsheetID,
	}
	if err := h.store.UpsertSettings(r.Context(), settings); err != nil {
		h.log.Error().Err(err).Msg("Failed to store settings")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store settings")
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(session.KeySpreadsheetID, req.SpreadsheetID); err != nil {
			h.log.Warn().Err(err).Msg("Failed to update settings cache")
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"spreadsheet_id": req.SpreadsheetID})
}
