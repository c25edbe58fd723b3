package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mizutanik/kakeibo/internal/recordstore"
)

// Resolver turns an incoming session token into a fully populated Session.
// The token is the HS256-signed JWT issued by the session provider; the
// spreadsheet id is resolved from the local settings cache first and the
// user's settings record second.
type Resolver struct {
	secret    []byte
	cache     *Cache
	settings  recordstore.SettingsStore
	revokeURL string
	client    *http.Client
}

// NewResolver creates a session resolver. cache and settings may be nil,
// in which case the corresponding lookup step is skipped.
func NewResolver(secret []byte, cache *Cache, settings recordstore.SettingsStore, revokeURL string) *Resolver {
	return &Resolver{
		secret:    secret,
		cache:     cache,
		settings:  settings,
		revokeURL: revokeURL,
		client:    http.DefaultClient,
	}
}

// FromToken verifies the signed session token, extracts the user identity
// and provider access token, and resolves the spreadsheet id. A session
// with no spreadsheet id is still returned so that configuration-free
// endpoints (settings, presets, chat history) keep working; calls that
// need backend headers fail later with ErrNotConfigured.
func (r *Resolver) FromToken(ctx context.Context, tokenString string) (*Session, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrSessionExpired
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return r.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("session: parsing token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrSessionExpired
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("session: token has no subject: %w", err)
	}

	expiry, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("session: reading token expiry: %w", err)
	}
	// exp is optional in JWTs; a token without one never expires
	// client-side (zero expiry, see NewToken).
	var expiresAt time.Time
	if expiry != nil {
		expiresAt = expiry.Time
	}

	// The provider embeds the upstream access token used for the backing
	// spreadsheet; fall back to the session JWT itself when absent.
	accessToken := tokenString
	if pt, ok := claims["provider_token"].(string); ok && pt != "" {
		accessToken = pt
	}

	sess := &Session{
		UserID: sub,
		Token:  NewToken(accessToken, expiresAt),
	}

	sess.SpreadsheetID = r.resolveSpreadsheetID(ctx, sub)
	return sess, nil
}

// resolveSpreadsheetID checks the local cache slot first, then the user's
// settings record. Missing configuration is not an error here.
func (r *Resolver) resolveSpreadsheetID(ctx context.Context, userID string) string {
	if r.cache != nil {
		if id := r.cache.Get(KeySpreadsheetID); id != "" {
			return id
		}
	}
	if r.settings != nil {
		s, err := r.settings.GetSettings(ctx, userID)
		if err == nil && s.SpreadsheetID != "" {
			return s.SpreadsheetID
		}
	}
	return ""
}

// Revoke invalidates the session at the provider. Used on logout; auth
// failures during normal operation never call this, they force a client
// reload instead.
func (r *Resolver) Revoke(ctx context.Context, sess *Session) error {
	if r.revokeURL == "" || sess == nil || sess.Token == nil {
		return nil
	}

	form := url.Values{"token": {sess.Token.AccessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("session: building revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("session: revoking token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("session: revoke endpoint returned %d", resp.StatusCode)
	}
	return nil
}
