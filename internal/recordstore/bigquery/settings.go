package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/mizutanik/kakeibo/internal/recordstore"
)

type settingsRow struct {
	UserID        string    `bigquery:"user_id"`
	SpreadsheetID string    `bigquery:"spreadsheet_id"`
	UpdatedAt     time.Time `bigquery:"updated_at"`
}

// GetSettings returns the user's settings record.
func (s *Store) GetSettings(ctx context.Context, userID string) (*recordstore.Settings, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT user_id, spreadsheet_id, updated_at
		FROM %s
		WHERE user_id = @user_id
		LIMIT 1
	`, s.table(settingsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery: reading settings: %w", err)
	}

	var row settingsRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, recordstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bigquery: iterating settings: %w", err)
	}

	return &recordstore.Settings{
		UserID:        row.UserID,
		SpreadsheetID: row.SpreadsheetID,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}

// UpsertSettings replaces the user's settings record. MERGE keeps the
// table at one row per user.
func (s *Store) UpsertSettings(ctx context.Context, settings *recordstore.Settings) error {
	settings.UpdatedAt = time.Now().UTC()

	q := s.client.Query(fmt.Sprintf(`
		MERGE %s t
		USING (SELECT @user_id AS user_id) src
		ON t.user_id = src.user_id
		WHEN MATCHED THEN
			UPDATE SET spreadsheet_id = @spreadsheet_id, updated_at = @updated_at
		WHEN NOT MATCHED THEN
			INSERT (user_id, spreadsheet_id, updated_at)
			VALUES (@user_id, @spreadsheet_id, @updated_at)
	`, s.table(settingsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: settings.UserID},
		{Name: "spreadsheet_id", Value: settings.SpreadsheetID},
		{Name: "updated_at", Value: settings.UpdatedAt},
	}

	if _, err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("bigquery: upserting settings for %s: %w", settings.UserID, err)
	}
	return nil
}
