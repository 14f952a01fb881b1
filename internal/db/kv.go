package db

import (
	"context"
	"fmt"
	"time"

	"github.com/stwalsh4118/marquee/internal/models"
	"gorm.io/gorm/clause"
)

// KVRepository stores serialized values under string keys
type KVRepository struct {
	db *DB
}

// NewKVRepository creates a new key-value repository
func NewKVRepository(db *DB) *KVRepository {
	return &KVRepository{db: db}
}

// Get returns the value stored under key or ErrNotFound
func (r *KVRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var entry models.KVEntry
	if err := r.db.WithContext(ctx).Where("name = ?", key).First(&entry).Error; err != nil {
		return nil, MapGormError(err)
	}
	return []byte(entry.Value), nil
}

// Put inserts or replaces the value stored under key
func (r *KVRepository) Put(ctx context.Context, key string, value []byte) error {
	entry := models.KVEntry{
		Key:       key,
		Value:     string(value),
		UpdatedAt: time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, MapGormError(err))
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (r *KVRepository) Delete(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Where("name = ?", key).Delete(&models.KVEntry{}).Error; err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, MapGormError(err))
	}
	return nil
}
