package enums

import "fmt"

// Audience selects which users are in scope for an alert.
type Audience string

const (
	AudienceAll        Audience = "all"
	AudienceDrivers    Audience = "drivers"
	AudiencePassengers Audience = "passengers"
	AudienceCustom     Audience = "custom"
)

var validAudiences = []Audience{
	AudienceAll,
	AudienceDrivers,
	AudiencePassengers,
	AudienceCustom,
}

// IsValid checks whether the given audience matches the canonical enum.
func (a Audience) IsValid() bool {
	for _, candidate := range validAudiences {
		if candidate == a {
			return true
		}
	}
	return false
}

// Role returns the user role an audience maps to, when it maps to one.
func (a Audience) Role() (string, bool) {
	switch a {
	case AudienceDrivers:
		return RoleDriver, true
	case AudiencePassengers:
		return RolePassenger, true
	default:
		return "", false
	}
}

// ParseAudience converts raw strings into Audience.
func ParseAudience(value string) (Audience, error) {
	for _, candidate := range validAudiences {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audience %q", value)
}

// User roles referenced by audience resolution.
const (
	RoleDriver    = "driver"
	RolePassenger = "passenger"
	RoleAdmin     = "admin"
)
