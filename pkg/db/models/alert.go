package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/ridewell/alertcast-backend/pkg/db/types"
	"github.com/ridewell/alertcast-backend/pkg/enums"
	"github.com/ridewell/alertcast-backend/pkg/types"
)

// Alert is the aggregate representing one broadcast message and its delivery
// outcome. Delivery channels never mutate it; the worker owns all transitions.
type Alert struct {
	ID         uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CreatedBy  uuid.UUID         `gorm:"column:created_by;type:uuid;not null"`
	Audience   enums.Audience    `gorm:"type:audience_enum;not null"`
	Recipients dbtypes.UUIDArray `gorm:"type:uuid[];not null;default:ARRAY[]::uuid[]"`
	Blocks     types.BlockList   `gorm:"type:jsonb;not null"`
	Status     enums.AlertStatus `gorm:"type:alert_status_enum;not null;default:'pending'"`
	Stats      AlertStats        `gorm:"embedded"`
	LastError  *string           `gorm:"column:last_error"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// AlertStats holds the per-channel delivery counters, finalized exactly once.
// TotalTargets/Sent/Failed/InvalidTokens cover the push channel only; the
// in-app pair is tracked independently.
type AlertStats struct {
	TotalTargets  int `gorm:"column:total_targets;not null;default:0"`
	Sent          int `gorm:"column:sent;not null;default:0"`
	Failed        int `gorm:"column:failed;not null;default:0"`
	InvalidTokens int `gorm:"column:invalid_tokens;not null;default:0"`
	InAppCreated  int `gorm:"column:in_app_created;not null;default:0"`
	InAppFailed   int `gorm:"column:in_app_failed;not null;default:0"`
}

// Payload returns the block used for delivery.
func (a *Alert) Payload() types.MessageBlock {
	return a.Blocks.First()
}
