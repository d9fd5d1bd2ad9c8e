package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/ridewell/alertcast-backend/pkg/db/types"
)

// User is the read-mostly view of a platform user consumed by the delivery
// pipeline. A missing device token excludes the user from push delivery but
// not from in-app delivery.
type User struct {
	ID          uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email       string              `gorm:"type:text;not null;uniqueIndex"`
	FirstName   string              `gorm:"column:first_name;not null"`
	LastName    string              `gorm:"column:last_name;not null"`
	Roles       dbtypes.StringArray `gorm:"type:text[];not null;default:ARRAY[]::text[]"`
	DeviceToken *string             `gorm:"column:device_token"`
	IsActive    bool                `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// HasDeviceToken reports whether the user is push-eligible.
func (u *User) HasDeviceToken() bool {
	return u.DeviceToken != nil && *u.DeviceToken != ""
}
