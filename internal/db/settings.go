package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fleet-service/internal/models"
)

const settingsKey = "operator"

// SettingsRepository persists thresholds and system mode as one document.
type SettingsRepository struct {
	conn Conn
}

func NewSettingsRepository(conn Conn) *SettingsRepository {
	return &SettingsRepository{conn: conn}
}

// Load returns ErrNotFound when nothing has been saved yet.
func (r *SettingsRepository) Load(ctx context.Context) (models.Settings, error) {
	var raw []byte
	err := r.conn.QueryRow(ctx, `SELECT value FROM fleet_settings WHERE name = $1`, settingsKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Settings{}, ErrNotFound
	}
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	var s models.Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return s, nil
}

// Save replaces the stored settings.
func (r *SettingsRepository) Save(ctx context.Context, s models.Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	query := `
	INSERT INTO fleet_settings (name, value, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	if _, err := r.conn.Exec(ctx, query, settingsKey, raw); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
