package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Emoji is a generated image persisted for a user.
type Emoji struct {
	ID               int       `json:"id" db:"id"`
	UserEmail        string    `json:"userEmail" db:"user_email"`
	Filename         string    `json:"filename" db:"filename"`
	OriginalFilename string    `json:"originalFilename,omitempty" db:"original_filename"`
	Prompt           string    `json:"prompt" db:"prompt"`
	Metadata         Metadata  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}

// Metadata type for JSONB fields
type Metadata map[string]any

// Value implements driver.Valuer for Metadata
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for Metadata
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}
