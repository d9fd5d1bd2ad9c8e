package enums

import "fmt"

// NotificationType classifies persisted in-app notifications.
type NotificationType string

const (
	NotificationTypeAlert         NotificationType = "alert"
	NotificationTypeSystem        NotificationType = "system"
	NotificationTypeBookingUpdate NotificationType = "booking_update"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeAlert,
	NotificationTypeSystem,
	NotificationTypeBookingUpdate,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// NotificationModule tags which product surface a notification belongs to.
type NotificationModule string

const (
	ModuleDrivers    NotificationModule = "drivers"
	ModulePassengers NotificationModule = "passengers"
	ModuleBroadcast  NotificationModule = "broadcast"
)

// ModuleForAudience maps an alert audience to the in-app module tag.
func ModuleForAudience(a Audience) NotificationModule {
	switch a {
	case AudienceDrivers:
		return ModuleDrivers
	case AudiencePassengers:
		return ModulePassengers
	default:
		return ModuleBroadcast
	}
}
