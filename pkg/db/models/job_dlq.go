package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobDLQ captures jobs that exhausted every attempt, payload verbatim, for
// manual inspection and replay.
type JobDLQ struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	JobID        uuid.UUID       `gorm:"column:job_id;type:uuid;not null"`
	Name         string          `gorm:"type:text;not null"`
	Payload      json.RawMessage `gorm:"column:payload_json;type:jsonb;not null"`
	ErrorMessage *string         `gorm:"column:error_message"`
	AttemptCount int             `gorm:"column:attempt_count;not null;default:0"`
	FailedAt     time.Time       `gorm:"column:failed_at;autoCreateTime"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}
