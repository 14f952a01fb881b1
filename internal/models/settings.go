package models

import (
	"time"
)

// AccessSettings is the persisted state of the admin access gate.
// It is a singleton table with only one row.
type AccessSettings struct {
	ID            int       `json:"-" gorm:"type:integer;primaryKey;default:1;column:id"`
	GlobalEnabled bool      `json:"global_enabled" gorm:"type:boolean;not null;column:global_enabled"`
	AllowList     []string  `json:"allow_list" gorm:"type:text;not null;serializer:json;column:allow_list"`
	Passphrase    string    `json:"-" gorm:"type:text;not null;column:passphrase"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:updated_at"`
}

// TableName overrides the GORM table name
func (AccessSettings) TableName() string {
	return "access_settings"
}

// DefaultAccessSettings returns settings with the gate enabled, an empty
// allow-list and the given passphrase
func DefaultAccessSettings(passphrase string) *AccessSettings {
	return &AccessSettings{
		ID:            1,
		GlobalEnabled: true,
		AllowList:     []string{},
		Passphrase:    passphrase,
		UpdatedAt:     time.Now().UTC(),
	}
}

// Allows reports whether identity is on the allow-list
func (s *AccessSettings) Allows(identity string) bool {
	for _, id := range s.AllowList {
		if id == identity {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without aliasing the allow-list
func (s *AccessSettings) Clone() *AccessSettings {
	c := *s
	c.AllowList = append([]string(nil), s.AllowList...)
	return &c
}
