package enums

import "fmt"

// AlertStatus tracks an alert through its delivery lifecycle.
type AlertStatus string

const (
	AlertStatusPending       AlertStatus = "pending"
	AlertStatusInProgress    AlertStatus = "in_progress"
	AlertStatusSent          AlertStatus = "sent"
	AlertStatusFailed        AlertStatus = "failed"
	AlertStatusPartiallySent AlertStatus = "partially_sent"
)

var validAlertStatuses = []AlertStatus{
	AlertStatusPending,
	AlertStatusInProgress,
	AlertStatusSent,
	AlertStatusFailed,
	AlertStatusPartiallySent,
}

// IsValid checks whether the given status matches the canonical enum.
func (s AlertStatus) IsValid() bool {
	for _, candidate := range validAlertStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the lifecycle.
func (s AlertStatus) IsTerminal() bool {
	switch s {
	case AlertStatusSent, AlertStatusFailed, AlertStatusPartiallySent:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces the forward-only state machine:
// pending -> in_progress -> {sent | failed | partially_sent}.
// Failed is additionally reachable from pending when a job dead-letters
// before processing ever started.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	switch s {
	case AlertStatusPending:
		return next == AlertStatusInProgress || next == AlertStatusFailed
	case AlertStatusInProgress:
		return next.IsTerminal()
	default:
		return false
	}
}

// ParseAlertStatus converts raw strings into AlertStatus.
func ParseAlertStatus(value string) (AlertStatus, error) {
	for _, candidate := range validAlertStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid alert status %q", value)
}
