package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mizutanik/kakeibo/internal/api/middleware"
	"github.com/mizutanik/kakeibo/internal/session"
)

// AuthHandler handles session lifecycle endpoints.
type AuthHandler struct {
	resolver *session.Resolver
	log      zerolog.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(resolver *session.Resolver, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{resolver: resolver, log: log}
}

// Logout handles POST /api/logout and revokes the provider session.
// Revocation failures are logged but the logout still succeeds; the
// client discards its token either way.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())

	if err := h.resolver.Revoke(r.Context(), sess); err != nil {
		h.log.Warn().Err(err).Msg("Session revocation failed")
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
