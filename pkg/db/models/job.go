package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job is one durable unit of queued work. Rows are deleted on success,
// retried with exponential backoff on transient failure, and moved to the
// dead-letter table once attempts are exhausted.
type Job struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string          `gorm:"type:text;not null;index"`
	Payload       json.RawMessage `gorm:"column:payload_json;type:jsonb;not null"`
	AttemptCount  int             `gorm:"column:attempt_count;not null;default:0"`
	MaxAttempts   int             `gorm:"column:max_attempts;not null"`
	NextAttemptAt time.Time       `gorm:"column:next_attempt_at;not null;index"`
	LastError     *string         `gorm:"column:last_error"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
