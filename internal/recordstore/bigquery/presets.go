package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/mizutanik/kakeibo/internal/extract"
	"github.com/mizutanik/kakeibo/internal/recordstore"
)

// presetRow is the BigQuery shape of a mapping preset. The column
// mapping holds the CSVMapping as a JSON string.
type presetRow struct {
	PresetID  string    `bigquery:"preset_id"`
	UserID    string    `bigquery:"user_id"`
	Name      string    `bigquery:"name"`
	Mapping   string    `bigquery:"mapping"`
	CreatedAt time.Time `bigquery:"created_at"`
}

// ListPresets returns the user's presets ordered by creation time.
func (s *Store) ListPresets(ctx context.Context, userID string) ([]recordstore.Preset, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT preset_id, user_id, name, mapping, created_at
		FROM %s
		WHERE user_id = @user_id
		ORDER BY created_at ASC
	`, s.table(presetsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery: listing presets: %w", err)
	}

	var presets []recordstore.Preset
	for {
		var row presetRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bigquery: iterating presets: %w", err)
		}

		var mapping extract.CSVMapping
		if err := json.Unmarshal([]byte(row.Mapping), &mapping); err != nil {
			return nil, fmt.Errorf("bigquery: decoding mapping of preset %s: %w", row.PresetID, err)
		}
		presets = append(presets, recordstore.Preset{
			ID:        row.PresetID,
			UserID:    row.UserID,
			Name:      row.Name,
			Mapping:   mapping,
			CreatedAt: row.CreatedAt,
		})
	}
	return presets, nil
}

// InsertPreset stores a new preset and assigns its id.
func (s *Store) InsertPreset(ctx context.Context, p *recordstore.Preset) error {
	mapping, err := json.Marshal(p.Mapping)
	if err != nil {
		return fmt.Errorf("bigquery: encoding mapping: %w", err)
	}

	p.ID = newID()
	p.CreatedAt = time.Now().UTC()

	row := &presetRow{
		PresetID:  p.ID,
		UserID:    p.UserID,
		Name:      p.Name,
		Mapping:   string(mapping),
		CreatedAt: p.CreatedAt,
	}
	if err := s.inserter(presetsTable).Put(ctx, row); err != nil {
		return fmt.Errorf("bigquery: inserting preset: %w", err)
	}
	return nil
}

// RenamePreset updates a preset's name.
func (s *Store) RenamePreset(ctx context.Context, userID, id, name string) error {
	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET name = @name
		WHERE preset_id = @preset_id AND user_id = @user_id
	`, s.table(presetsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "name", Value: name},
		{Name: "preset_id", Value: id},
		{Name: "user_id", Value: userID},
	}

	affected, err := s.runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("bigquery: renaming preset %s: %w", id, err)
	}
	if affected == 0 {
		return recordstore.ErrNotFound
	}
	return nil
}

// DeletePreset removes a preset.
func (s *Store) DeletePreset(ctx context.Context, userID, id string) error {
	q := s.client.Query(fmt.Sprintf(`
		DELETE FROM %s
		WHERE preset_id = @preset_id AND user_id = @user_id
	`, s.table(presetsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "preset_id", Value: id},
		{Name: "user_id", Value: userID},
	}

	affected, err := s.runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("bigquery: deleting preset %s: %w", id, err)
	}
	if affected == 0 {
		return recordstore.ErrNotFound
	}
	return nil
}

// runDML runs a mutating query and returns the affected row count.
func (s *Store) runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}
