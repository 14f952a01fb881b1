package models

import "time"

// KVEntry is a serialized value stored under a string key
type KVEntry struct {
	Key       string    `gorm:"type:text;primaryKey;column:name"`
	Value     string    `gorm:"type:text;not null;column:value"`
	UpdatedAt time.Time `gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:updated_at"`
}

// TableName overrides the GORM table name
func (KVEntry) TableName() string {
	return "kv_entries"
}

// Counter is a monotonic named aggregate counter
type Counter struct {
	Name      string    `json:"name" gorm:"type:text;primaryKey;column:name"`
	Value     int64     `json:"value" gorm:"type:integer;not null;default:0;column:value"`
	UpdatedAt time.Time `json:"updated_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:updated_at"`
}

// TableName overrides the GORM table name
func (Counter) TableName() string {
	return "counters"
}

// Well known counter names
const (
	CounterAdsShown = "ads_shown"
)
