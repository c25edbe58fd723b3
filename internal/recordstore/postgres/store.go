// Package postgres implements the record store on PostgreSQL for
// deployments that do not run on GCP. The schema is created on startup
// from the embedded migration.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/mizutanik/kakeibo/internal/recordstore"
)

//go:embed schema.sql
var migrationSQL string

// Config holds the PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Store implements the record store over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

var _ recordstore.Store = (*Store)(nil)

// NewStore connects to the database, runs the migration and returns the
// store.
func NewStore(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, migrationSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migration: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("Connected to PostgreSQL")
	return &Store{pool: pool, log: log}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ListPresets returns the user's presets ordered by creation time.
func (s *Store) ListPresets(ctx context.Context, userID string) ([]recordstore.Preset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT preset_id, user_id, name, mapping, created_at
		FROM mapping_presets
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing presets: %w", err)
	}
	defer rows.Close()

	var presets []recordstore.Preset
	for rows.Next() {
		var (
			p       recordstore.Preset
			mapping []byte
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &mapping, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning preset: %w", err)
		}
		if err := json.Unmarshal(mapping, &p.Mapping); err != nil {
			return nil, fmt.Errorf("postgres: decoding mapping of preset %s: %w", p.ID, err)
		}
		presets = append(presets, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating presets: %w", err)
	}
	return presets, nil
}

// InsertPreset stores a new preset and assigns its id.
func (s *Store) InsertPreset(ctx context.Context, p *recordstore.Preset) error {
	mapping, err := json.Marshal(p.Mapping)
	if err != nil {
		return fmt.Errorf("postgres: encoding mapping: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO mapping_presets (user_id, name, mapping)
		VALUES ($1, $2, $3)
		RETURNING preset_id, created_at
	`, p.UserID, p.Name, mapping).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: inserting preset: %w", mapConstraint(err))
	}
	return nil
}

// RenamePreset updates a preset's name.
func (s *Store) RenamePreset(ctx context.Context, userID, id, name string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE mapping_presets
		SET name = $1
		WHERE preset_id = $2 AND user_id = $3
	`, name, id, userID)
	if err != nil {
		return fmt.Errorf("postgres: renaming preset %s: %w", id, mapConstraint(err))
	}
	if tag.RowsAffected() == 0 {
		return recordstore.ErrNotFound
	}
	return nil
}

// DeletePreset removes a preset.
func (s *Store) DeletePreset(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM mapping_presets
		WHERE preset_id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("postgres: deleting preset %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return recordstore.ErrNotFound
	}
	return nil
}

// GetSettings returns the user's settings record.
func (s *Store) GetSettings(ctx context.Context, userID string) (*recordstore.Settings, error) {
	var out recordstore.Settings
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, spreadsheet_id, updated_at
		FROM user_settings
		WHERE user_id = $1
	`, userID).Scan(&out.UserID, &out.SpreadsheetID, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, recordstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: reading settings: %w", err)
	}
	return &out, nil
}

// UpsertSettings replaces the user's settings record.
func (s *Store) UpsertSettings(ctx context.Context, settings *recordstore.Settings) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO user_settings (user_id, spreadsheet_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			spreadsheet_id = EXCLUDED.spreadsheet_id,
			updated_at = NOW()
		RETURNING updated_at
	`, settings.UserID, settings.SpreadsheetID).Scan(&settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upserting settings for %s: %w", settings.UserID, err)
	}
	return nil
}

// ListMessages returns the user's chat history, oldest first.
func (s *Store) ListMessages(ctx context.Context, userID string) ([]recordstore.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT message_id, user_id, role, content, created_at
		FROM chat_messages
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []recordstore.ChatMessage
	for rows.Next() {
		var m recordstore.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating chat messages: %w", err)
	}
	return msgs, nil
}

// InsertMessage stores one side of a chat exchange and assigns its id.
func (s *Store) InsertMessage(ctx context.Context, msg *recordstore.ChatMessage) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (user_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING message_id, created_at
	`, msg.UserID, msg.Role, msg.Content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: inserting chat message: %w", err)
	}
	return nil
}

// mapConstraint translates unique-violation errors so callers can match
// them without importing pgx.
func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return recordstore.ErrDuplicateName
	}
	return err
}
