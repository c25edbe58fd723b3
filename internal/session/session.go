// Package session holds the explicit session object threaded through every
// backend call: the provider access token and the target spreadsheet id.
// Nothing in this package performs authentication itself; the session
// provider (outside this repo) issues tokens, and this package only
// validates, carries and revokes them.
package session

import (
	"errors"
	"time"

	"golang.org/x/oauth2"

	"github.com/mizutanik/kakeibo/internal/extract"
)

var (
	// ErrNotConfigured means no spreadsheet id is configured for the user.
	// The action is refused before any network call is made.
	ErrNotConfigured = errors.New("session: no spreadsheet configured")

	// ErrSessionExpired means the access token is missing or expired and
	// the client must re-authenticate.
	ErrSessionExpired = errors.New("session: access token missing or expired")
)

// Request header names expected by the extraction backend.
const (
	HeaderAccessToken   = "x-access-token"
	HeaderSpreadsheetID = "x-spreadsheet-id"
)

var _ extract.HeaderSource = (*Session)(nil)

// Session is the per-request authentication and configuration context.
type Session struct {
	// UserID is the subject claim of the verified session token.
	UserID string

	// Token is the provider access token forwarded to the backend.
	Token *oauth2.Token

	// SpreadsheetID identifies the target store the backend writes to.
	SpreadsheetID string
}

// Headers returns the request headers every backend call must carry.
// It fails without issuing any network traffic when the session is not
// fully configured.
func (s *Session) Headers() (map[string]string, error) {
	if s == nil || s.Token == nil || s.Token.AccessToken == "" || !s.Token.Valid() {
		return nil, ErrSessionExpired
	}
	if s.SpreadsheetID == "" {
		return nil, ErrNotConfigured
	}
	return map[string]string{
		HeaderAccessToken:   s.Token.AccessToken,
		HeaderSpreadsheetID: s.SpreadsheetID,
	}, nil
}

// NewToken builds an oauth2 token from a bearer access token and its
// expiry. A zero expiry means the token does not expire client-side.
func NewToken(accessToken string, expiry time.Time) *oauth2.Token {
	return &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}
}
