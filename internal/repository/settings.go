package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"noprime/redirector/internal/state"
)

const enabledKey = "enabled"

// DB is the part of *pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type settingsRepository struct {
	db DB
}

// NewSettingsRepository keeps the enabled flag in the settings table.
func NewSettingsRepository(db DB) state.SettingsStore {
	return &settingsRepository{
		db: db,
	}
}

// EnsureSchema creates the settings table when it is missing.
func EnsureSchema(ctx context.Context, db DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value BOOLEAN NOT NULL
	)`
	if _, err := db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}
	return nil
}

func (r *settingsRepository) Enabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, enabledKey).Scan(&enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return state.DefaultEnabled, nil
		}
		return state.DefaultEnabled, fmt.Errorf("failed to load enabled flag: %w", err)
	}

	return enabled, nil
}

func (r *settingsRepository) SetEnabled(ctx context.Context, enabled bool) error {
	query := `
	INSERT INTO settings (key, value)
	VALUES ($1, $2)
	ON CONFLICT (key)
	DO UPDATE SET value = $2`
	_, err := r.db.Exec(ctx, query, enabledKey, enabled)
	if err != nil {
		return fmt.Errorf("failed to save enabled flag: %w", err)
	}

	return nil
}
