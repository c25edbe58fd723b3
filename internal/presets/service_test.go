package presets

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mizutanik/kakeibo/internal/extract"
	"github.com/mizutanik/kakeibo/internal/recordstore"
)

// memPresetStore is an in-memory PresetStore for tests.
type memPresetStore struct {
	presets []recordstore.Preset
	nextID  int
}

func (m *memPresetStore) ListPresets(ctx context.Context, userID string) ([]recordstore.Preset, error) {
	var out []recordstore.Preset
	for _, p := range m.presets {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPresetStore) InsertPreset(ctx context.Context, p *recordstore.Preset) error {
	m.nextID++
	p.ID = fmt.Sprintf("preset-%d", m.nextID)
	p.CreatedAt = time.Now()
	m.presets = append(m.presets, *p)
	return nil
}

func (m *memPresetStore) RenamePreset(ctx context.Context, userID, id, name string) error {
	for i := range m.presets {
		if m.presets[i].ID == id && m.presets[i].UserID == userID {
			m.presets[i].Name = name
			return nil
		}
	}
	return recordstore.ErrNotFound
}

func (m *memPresetStore) DeletePreset(ctx context.Context, userID, id string) error {
	for i := range m.presets {
		if m.presets[i].ID == id && m.presets[i].UserID == userID {
			m.presets = append(m.presets[:i], m.presets[i+1:]...)
			return nil
		}
	}
	return recordstore.ErrNotFound
}

func TestCreate(t *testing.T) {
	store := &memPresetStore{}
	svc := NewService(store, zerolog.Nop())
	mapping := &extract.CSVMapping{DateColIdx: 0, ItemColIdx: 2, StoreColIdx: 1, PriceColIdx: 3, Confidence: 0.92}

	p, collided, err := svc.Create(context.Background(), "user-1", "  rakuten card  ", mapping)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if collided {
		t.Error("unexpected collision on first save")
	}
	if p.ID == "" {
		t.Error("store-assigned id missing")
	}
	if p.Name != "rakuten card" {
		t.Errorf("name not trimmed: %q", p.Name)
	}

	// Same name again: warns but still persists.
	p2, collided, err := svc.Create(context.Background(), "user-1", "rakuten card", mapping)
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if !collided {
		t.Error("expected collision warning")
	}
	if p2.ID == p.ID {
		t.Error("second save did not create a new record")
	}

	if _, _, err := svc.Create(context.Background(), "user-1", "   ", mapping); !errors.Is(err, ErrNameRequired) {
		t.Errorf("blank name: got %v, want ErrNameRequired", err)
	}
	if _, _, err := svc.Create(context.Background(), "user-1", "x", nil); !errors.Is(err, ErrNoMapping) {
		t.Errorf("nil mapping: got %v, want ErrNoMapping", err)
	}
}

func TestRename(t *testing.T) {
	store := &memPresetStore{}
	svc := NewService(store, zerolog.Nop())
	mapping := &extract.CSVMapping{PriceColIdx: 3}

	a, _, _ := svc.Create(context.Background(), "user-1", "a", mapping)
	b, _, _ := svc.Create(context.Background(), "user-1", "b", mapping)

	// Empty and identical names are no-ops.
	if err := svc.Rename(context.Background(), "user-1", a.ID, "  "); err != nil {
		t.Errorf("empty rename: got %v, want nil no-op", err)
	}
	if err := svc.Rename(context.Background(), "user-1", a.ID, "a"); err != nil {
		t.Errorf("identical rename: got %v, want nil no-op", err)
	}

	// Collision with another preset is rejected.
	if err := svc.Rename(context.Background(), "user-1", b.ID, "a"); !errors.Is(err, ErrNameTaken) {
		t.Errorf("collision rename: got %v, want ErrNameTaken", err)
	}

	if err := svc.Rename(context.Background(), "user-1", b.ID, "c"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	got, err := svc.Find(context.Background(), "user-1", b.ID)
	if err != nil || got.Name != "c" {
		t.Errorf("after rename: got %+v, %v", got, err)
	}
}

func TestPresetRoundTrip(t *testing.T) {
	store := &memPresetStore{}
	svc := NewService(store, zerolog.Nop())

	mapping := &extract.CSVMapping{DateColIdx: 1, ItemColIdx: 4, StoreColIdx: 4, PriceColIdx: 6, Confidence: 0.88}
	saved, _, err := svc.Create(context.Background(), "user-1", "mufg", mapping)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	loaded, err := svc.Find(context.Background(), "user-1", saved.ID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if loaded.Mapping != *mapping {
		t.Errorf("mapping round-trip: got %+v, want %+v", loaded.Mapping, *mapping)
	}
}

func TestDeleteScopedToUser(t *testing.T) {
	store := &memPresetStore{}
	svc := NewService(store, zerolog.Nop())
	mapping := &extract.CSVMapping{PriceColIdx: 3}

	mine, _, _ := svc.Create(context.Background(), "user-1", "mine", mapping)
	theirs, _, _ := svc.Create(context.Background(), "user-2", "theirs", mapping)

	if err := svc.Delete(context.Background(), "user-1", theirs.ID); err == nil {
		t.Error("deleting another user's preset succeeded")
	}
	if err := svc.Delete(context.Background(), "user-1", mine.ID); err != nil {
		t.Errorf("deleting own preset failed: %v", err)
	}

	left, _ := svc.List(context.Background(), "user-2")
	if len(left) != 1 {
		t.Errorf("user-2 presets after deletes: got %d, want 1", len(left))
	}
}
