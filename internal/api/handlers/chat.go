package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mizutanik/kakeibo/internal/api/middleware"
	"github.com/mizutanik/kakeibo/internal/chat"
	"github.com/mizutanik/kakeibo/internal/extract"
	"github.com/mizutanik/kakeibo/internal/recordstore"
	"github.com/mizutanik/kakeibo/internal/session"
)

// ChatHandler handles the record search conversation endpoints.
type ChatHandler struct {
	svc *chat.Service
	log zerolog.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(svc *chat.Service, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, log: log}
}

// History handles GET /api/chat.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())

	msgs, err := h.svc.History(r.Context(), sess.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read chat history")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read chat history")
		return
	}
	if msgs == nil {
		msgs = []recordstore.ChatMessage{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"count":    len(msgs),
	})
}

// Ask handles POST /api/chat.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string `json:"query"`
		DataType string `json:"data_type"`
		Period   string `json:"period"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess := middleware.SessionFrom(r.Context())
	answer, err := h.svc.Ask(r.Context(), sess, extract.SearchRequest{
		Query:    req.Query,
		DataType: req.DataType,
		Period:   req.Period,
	})
	switch {
	case errors.Is(err, extract.ErrUnauthorized), errors.Is(err, session.ErrSessionExpired):
		middleware.WriteError(w, http.StatusUnauthorized, "Session expired")
		return
	case errors.Is(err, session.ErrNotConfigured):
		middleware.WriteError(w, http.StatusConflict, "No spreadsheet configured")
		return
	case err != nil:
		h.log.Error().Err(err).Msg("Search failed")
		middleware.WriteError(w, http.StatusBadGateway, "Search failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"answer": answer})
}
