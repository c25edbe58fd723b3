// Package presets implements the create/reuse/rename/delete workflow over
// saved CSV column-mapping presets. Name uniqueness is pre-checked here
// per user and only warned about on save; the stores deliberately accept
// duplicate names, so near-simultaneous saves from two sessions may both
// land.
package presets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mizutanik/kakeibo/internal/extract"
	"github.com/mizutanik/kakeibo/internal/recordstore"
)

var (
	// ErrNameRequired is returned when a preset name is empty after trimming.
	ErrNameRequired = errors.New("presets: name is required")

	// ErrNameTaken is returned by Rename when the new name belongs to
	// another preset of the same user.
	ErrNameTaken = errors.New("presets: name already in use")

	// ErrNoMapping is returned when saving a preset before any analysis
	// has produced a mapping.
	ErrNoMapping = errors.New("presets: no mapping to save")
)

// Service coordinates preset CRUD against the record store.
type Service struct {
	store recordstore.PresetStore
	log   zerolog.Logger
}

// NewService creates a preset service.
func NewService(store recordstore.PresetStore, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

// List returns the user's presets ordered by creation time ascending.
func (s *Service) List(ctx context.Context, userID string) ([]recordstore.Preset, error) {
	return s.store.ListPresets(ctx, userID)
}

// Create persists the mapping produced by the most recent analysis under
// the given name. A name collision is reported back as a warning but does
// not block the save; the boolean result is true when the name collided
// with an existing preset.
func (s *Service) Create(ctx context.Context, userID, name string, mapping *extract.CSVMapping) (*recordstore.Preset, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, ErrNameRequired
	}
	if mapping == nil {
		return nil, false, ErrNoMapping
	}

	collided, err := s.nameExists(ctx, userID, name, "")
	if err != nil {
		return nil, false, err
	}
	if collided {
		s.log.Warn().Str("name", name).Msg("Saving preset under a name that already exists")
	}

	p := &recordstore.Preset{
		UserID:  userID,
		Name:    name,
		Mapping: *mapping,
	}
	if err := s.store.InsertPreset(ctx, p); err != nil {
		return nil, collided, fmt.Errorf("presets: saving %q: %w", name, err)
	}
	return p, collided, nil
}

// Rename changes a preset's name. An empty or identical name is a no-op;
// a name that belongs to another preset of the same user is rejected.
func (s *Service) Rename(ctx context.Context, userID, id, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil
	}

	current, err := s.find(ctx, userID, id)
	if err != nil {
		return err
	}
	if current.Name == newName {
		return nil
	}

	collided, err := s.nameExists(ctx, userID, newName, id)
	if err != nil {
		return err
	}
	if collided {
		return ErrNameTaken
	}

	if err := s.store.RenamePreset(ctx, userID, id, newName); err != nil {
		return fmt.Errorf("presets: renaming %s: %w", id, err)
	}
	return nil
}

// Delete removes a preset.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeletePreset(ctx, userID, id); err != nil {
		return fmt.Errorf("presets: deleting %s: %w", id, err)
	}
	return nil
}

// Find returns one preset by id.
func (s *Service) Find(ctx context.Context, userID, id string) (*recordstore.Preset, error) {
	return s.find(ctx, userID, id)
}

func (s *Service) find(ctx context.Context, userID, id string) (*recordstore.Preset, error) {
	all, err := s.store.ListPresets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("presets: listing for %s: %w", userID, err)
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, recordstore.ErrNotFound
}

// nameExists reports whether another preset of the user (excluding
// excludeID) already carries the name.
func (s *Service) nameExists(ctx context.Context, userID, name, excludeID string) (bool, error) {
	all, err := s.store.ListPresets(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("presets: listing for %s: %w", userID, err)
	}
	for _, p := range all {
		if p.ID != excludeID && p.Name == name {
			return true, nil
		}
	}
	return false, nil
}
