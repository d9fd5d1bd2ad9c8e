package audience

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ridewell/alertcast-backend/pkg/db/models"
	"github.com/ridewell/alertcast-backend/pkg/enums"
	pkgerrors "github.com/ridewell/alertcast-backend/pkg/errors"
	"github.com/ridewell/alertcast-backend/internal/users"
)

// Target is one user eligible for delivery. DeviceToken is empty when the
// user has no registered device.
type Target struct {
	ID          uuid.UUID
	DeviceToken string
}

// Resolution splits the resolved audience into the push-eligible subset
// and the full in-app set.
type Resolution struct {
	// PushTargets hold a non-empty device token.
	PushTargets []Target
	// AllTargets includes token-less users; they still get in-app records.
	AllTargets []Target
}

// UserFinder is the slice of the users repository the resolver needs.
type UserFinder interface {
	Find(ctx context.Context, filter users.Filter) ([]models.User, error)
}

// Resolver expands an alert's audience into concrete delivery targets.
type Resolver struct {
	users UserFinder
}

func NewResolver(finder UserFinder) (*Resolver, error) {
	if finder == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user finder required")
	}
	return &Resolver{users: finder}, nil
}

// Resolve expands the alert's audience. Explicit recipients take precedence
// over the audience selector; a custom audience without recipients resolves
// to zero targets.
func (r *Resolver) Resolve(ctx context.Context, alert *models.Alert) (*Resolution, error) {
	if alert == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "alert required")
	}

	filter, empty, err := filterFor(alert)
	if err != nil {
		return nil, err
	}
	if empty {
		return &Resolution{}, nil
	}

	rows, err := r.users.Find(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving audience")
	}

	resolution := &Resolution{
		AllTargets: make([]Target, 0, len(rows)),
	}
	for _, user := range rows {
		target := Target{ID: user.ID}
		if user.HasDeviceToken() {
			target.DeviceToken = *user.DeviceToken
			resolution.PushTargets = append(resolution.PushTargets, target)
		}
		resolution.AllTargets = append(resolution.AllTargets, target)
	}
	return resolution, nil
}

func filterFor(alert *models.Alert) (users.Filter, bool, error) {
	if len(alert.Recipients) > 0 {
		return users.Filter{IDs: alert.Recipients}, false, nil
	}

	switch alert.Audience {
	case enums.AudienceAll:
		return users.Filter{}, false, nil
	case enums.AudienceDrivers:
		return users.Filter{Role: enums.RoleDriver}, false, nil
	case enums.AudiencePassengers:
		return users.Filter{Role: enums.RolePassenger}, false, nil
	case enums.AudienceCustom:
		// Custom audience with no recipients targets nobody.
		return users.Filter{}, true, nil
	default:
		return users.Filter{}, false, pkgerrors.New(
			pkgerrors.CodeValidation, fmt.Sprintf("unknown audience %q", alert.Audience))
	}
}
