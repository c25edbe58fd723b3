// Package bigquery implements the record store on BigQuery. One client
// is shared by all operations; tables live in a single dataset.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/mizutanik/kakeibo/internal/recordstore"
)

const (
	presetsTable  = "mapping_presets"
	settingsTable = "user_settings"
	chatTable     = "chat_messages"
)

// Store holds the shared BigQuery client and dataset location.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

var _ recordstore.Store = (*Store)(nil)

// NewStore creates a store for the given project and dataset.
func NewStore(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery: creating client: %w", err)
	}
	return &Store{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, name)
}

func (s *Store) inserter(table string) *bigquery.Inserter {
	return s.client.Dataset(s.datasetID).Table(table).Inserter()
}

func newID() string {
	return uuid.NewString()
}
