// internal/repository/settings_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"risk-engine/internal/models"
)

// SettingsRepository keeps the single live settings row.
type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) LoadSettings(ctx context.Context) (*models.Settings, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT settings FROM risk_settings WHERE id = 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s models.Settings
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &s, nil
}

func (r *SettingsRepository) SaveSettings(ctx context.Context, settings *models.Settings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	query := `
		INSERT INTO risk_settings (id, settings, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.ExecContext(ctx, query, string(payload), settings.UpdatedAt)
	return err
}
