package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stwalsh4118/marquee/internal/models"
)

// SettingsRepository handles database operations for access gate settings.
// Settings is a singleton table with only one row.
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get retrieves the settings, creating them from defaults if they do not exist yet
func (r *SettingsRepository) Get(ctx context.Context, defaults *models.AccessSettings) (*models.AccessSettings, error) {
	var settings models.AccessSettings
	result := r.db.WithContext(ctx).Where("id = ?", 1).First(&settings)

	if result.Error != nil {
		if errors.Is(MapGormError(result.Error), ErrNotFound) {
			if err := r.db.WithContext(ctx).Create(defaults).Error; err != nil {
				return nil, fmt.Errorf("failed to create default settings: %w", MapGormError(err))
			}
			return defaults.Clone(), nil
		}
		return nil, MapGormError(result.Error)
	}

	if settings.AllowList == nil {
		settings.AllowList = []string{}
	}
	return &settings, nil
}

// Save writes every column of the singleton row. Save is used instead of
// Updates so that false and empty values are persisted.
func (r *SettingsRepository) Save(ctx context.Context, settings *models.AccessSettings) error {
	row := settings.Clone()
	row.ID = 1
	row.UpdatedAt = time.Now().UTC()

	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return fmt.Errorf("failed to save settings: %w", MapGormError(err))
	}
	return nil
}
