package db

import (
	"context"
	"fmt"
	"time"

	"github.com/stwalsh4118/marquee/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CounterRepository handles monotonic aggregate counters
type CounterRepository struct {
	db *DB
}

// NewCounterRepository creates a new counter repository
func NewCounterRepository(db *DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// Increment adds delta to the named counter, creating it if needed, and
// returns the new value
func (r *CounterRepository) Increment(ctx context.Context, name string, delta int64) (int64, error) {
	if delta < 0 {
		return 0, fmt.Errorf("%w: counters only grow", ErrInvalidInput)
	}

	var value int64
	err := r.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		row := models.Counter{Name: name, Value: delta, UpdatedAt: time.Now().UTC()}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":      gorm.Expr("counters.value + ?", delta),
				"updated_at": row.UpdatedAt,
			}),
		}).Create(&row).Error; err != nil {
			return MapGormError(err)
		}

		var current models.Counter
		if err := tx.Where("name = ?", name).First(&current).Error; err != nil {
			return MapGormError(err)
		}
		value = current.Value
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", name, err)
	}
	return value, nil
}

// All returns every counter keyed by name
func (r *CounterRepository) All(ctx context.Context) (map[string]int64, error) {
	var rows []models.Counter
	if err := r.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list counters: %w", MapGormError(err))
	}

	counters := make(map[string]int64, len(rows))
	for _, row := range rows {
		counters[row.Name] = row.Value
	}
	return counters, nil
}
