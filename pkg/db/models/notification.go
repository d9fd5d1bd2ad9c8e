package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ridewell/alertcast-backend/pkg/enums"
	"github.com/ridewell/alertcast-backend/pkg/types"
)

// Notification stores one in-app notification record per user. Alert-sourced
// rows carry the alert id; the (alert_id, user_id) unique index makes fan-out
// re-runs idempotent (NULL alert ids never collide).
type Notification struct {
	ID         uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index;uniqueIndex:ux_notifications_alert_user"`
	AlertID    *uuid.UUID               `gorm:"column:alert_id;type:uuid;uniqueIndex:ux_notifications_alert_user"`
	Type       enums.NotificationType   `gorm:"type:notification_type_enum;not null"`
	Module     enums.NotificationModule `gorm:"type:text;not null"`
	Title      string                   `gorm:"type:text;not null"`
	Message    string                   `gorm:"type:text;not null"`
	ActionLink *string                  `gorm:"column:action_link"`
	Metadata   types.Metadata           `gorm:"type:jsonb"`
	ReadAt     *time.Time               `gorm:"type:timestamptz"`
	CreatedAt  time.Time                `gorm:"type:timestamptz;default:now()"`
}
