package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mizutanik/kakeibo/internal/api/middleware"
	"github.com/mizutanik/kakeibo/internal/extract"
	"github.com/mizutanik/kakeibo/internal/presets"
	"github.com/mizutanik/kakeibo/internal/recordstore"
)

// SelectionClearer is notified when a preset is deleted so any live
// selection of it can be dropped.
type SelectionClearer interface {
	ClearSelection(userID, presetID string)
}

// PresetsHandler handles the mapping preset endpoints.
type PresetsHandler struct {
	svc     *presets.Service
	clearer SelectionClearer
	log     zerolog.Logger
}

// NewPresetsHandler creates a presets handler. clearer may be nil.
func NewPresetsHandler(svc *presets.Service, clearer SelectionClearer, log zerolog.Logger) *PresetsHandler {
	return &PresetsHandler{svc: svc, clearer: clearer, log: log}
}

// List handles GET /api/presets.
func (h *PresetsHandler) List(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())

	list, err := h.svc.List(r.Context(), sess.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list presets")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list presets")
		return
	}
	if list == nil {
		list = []recordstore.Preset{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"presets": list,
		"count":   len(list),
	})
}

// Create handles POST /api/presets. A name collision does not block the
// save; the response carries a warning flag instead.
func (h *PresetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string              `json:"name"`
		Mapping *extract.CSVMapping `json:"mapping"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess := middleware.SessionFrom(r.Context())
	p, collided, err := h.svc.Create(r.Context(), sess.UserID, req.Name, req.Mapping)
	switch {
	case errors.Is(err, presets.ErrNameRequired):
		middleware.WriteError(w, http.StatusUnprocessableEntity, "Preset name is required")
		return
	case errors.Is(err, presets.ErrNoMapping):
		middleware.WriteError(w, http.StatusConflict, "No analyzed mapping to save")
		return
	case err != nil:
		h.log.Error().Err(err).Msg("Failed to save preset")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save preset")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"preset":        p,
		"name_collided": collided,
	})
}

// Rename handles PUT /api/presets/{id}.
func (h *PresetsHandler) Rename(w http.ResponseWriter, r *http.Request, presetID string) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess := middleware.SessionFrom(r.Context())
	err := h.svc.Rename(r.Context(), sess.UserID, presetID, req.Name)
	switch {
	case errors.Is(err, presets.ErrNameTaken):
		middleware.WriteError(w, http.StatusConflict, "Another preset already has that name")
	case errors.Is(err, recordstore.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Preset not found")
	case err != nil:
		h.log.Error().Err(err).Msg("Failed to rename preset")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to rename preset")
	default:
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Delete handles DELETE /api/presets/{id}.
func (h *PresetsHandler) Delete(w http.ResponseWriter, r *http.Request, presetID string) {
	sess := middleware.SessionFrom(r.Context())

	err := h.svc.Delete(r.Context(), sess.UserID, presetID)
	switch {
	case errors.Is(err, recordstore.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Preset not found")
		return
	case err != nil:
		h.log.Error().Err(err).Msg("Failed to delete preset")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete preset")
		return
	}

	if h.clearer != nil {
		h.clearer.ClearSelection(sess.UserID, presetID)
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"deleted": presetID})
}
