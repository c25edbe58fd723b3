// Package recordstore defines the keyed record store consumed by the
// gateway for per-user settings, CSV presets and chat history. Two
// implementations exist: a BigQuery-backed store for deployments that
// already run on GCP, and a Postgres-backed store for local use.
package recordstore

import (
	"context"
	"errors"
	"time"

	"github.com/mizutanik/kakeibo/internal/extract"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("recordstore: record not found")

// ErrDuplicateName is returned by stores that enforce preset name
// uniqueness with a constraint. The BigQuery store does not; callers
// still pre-check names before saving.
var ErrDuplicateName = errors.New("recordstore: preset name already exists")

// Preset is a named, persisted CSV column mapping owned by one user.
type Preset struct {
	ID        string             `json:"id"`
	UserID    string             `json:"-"`
	Name      string             `json:"name"`
	Mapping   extract.CSVMapping `json:"mapping"`
	CreatedAt time.Time          `json:"created_at"`
}

// Settings is the per-user gateway configuration record.
type Settings struct {
	UserID        string    `json:"-"`
	SpreadsheetID string    `json:"spreadsheet_id"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ChatMessage is one message in a user's search conversation.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// PresetStore provides CRUD over a user's CSV presets.
type PresetStore interface {
	// ListPresets returns all presets owned by the user, ordered by
	// creation time ascending.
	ListPresets(ctx context.Context, userID string) ([]Preset, error)

	// InsertPreset persists a new preset and fills in its store-assigned
	// ID and creation time.
	InsertPreset(ctx context.Context, p *Preset) error

	// RenamePreset updates the name of an existing preset.
	RenamePreset(ctx context.Context, userID, id, name string) error

	// DeletePreset removes a preset.
	DeletePreset(ctx context.Context, userID, id string) error
}

// SettingsStore provides access to per-user settings records.
type SettingsStore interface {
	// GetSettings returns the settings record for the user, or
	// ErrNotFound when the user has not completed setup.
	GetSettings(ctx context.Context, userID string) (*Settings, error)

	// UpsertSettings creates or replaces the user's settings record.
	UpsertSettings(ctx context.Context, s *Settings) error
}

// ChatStore provides access to a user's chat history.
type ChatStore interface {
	// ListMessages returns the user's messages ordered by timestamp ascending.
	ListMessages(ctx context.Context, userID string) ([]ChatMessage, error)

	// InsertMessage appends a message to the user's history.
	InsertMessage(ctx context.Context, m *ChatMessage) error
}

// Store is the full record store consumed by the gateway.
type Store interface {
	PresetStore
	SettingsStore
	ChatStore

	// Close releases the store's underlying client or pool.
	Close() error
}
