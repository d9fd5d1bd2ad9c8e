package delivery

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/ridewell/alertcast-backend/internal/audience"
	dbpkg "github.com/ridewell/alertcast-backend/pkg/db"
	"github.com/ridewell/alertcast-backend/pkg/db/models"
	"github.com/ridewell/alertcast-backend/pkg/dedupe"
	"github.com/ridewell/alertcast-backend/pkg/enums"
	pkgerrors "github.com/ridewell/alertcast-backend/pkg/errors"
	"github.com/ridewell/alertcast-backend/pkg/logger"
	"github.com/ridewell/alertcast-backend/pkg/metrics"
	"github.com/ridewell/alertcast-backend/pkg/types"
	"github.com/google/uuid"
)

const (
	fallbackTitle   = "New alert"
	fallbackMessage = "You have a new alert."
)

// InAppOutcome aggregates the persisted-notification counters for one alert.
type InAppOutcome struct {
	Created int
	Failed  int
}

// NotificationCreator is the slice of the notifications repository the
// fan-out writes through.
type NotificationCreator interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Fanout writes one in-app notification row per resolved target.
type Fanout struct {
	repo    NotificationCreator
	guard   DeliveryGuard
	limiter *rate.Limiter
	metrics *metrics.DeliveryMetrics
	logg    *logger.Logger
}

func NewFanout(repo NotificationCreator, guard DeliveryGuard, limiter *rate.Limiter, m *metrics.DeliveryMetrics, logg *logger.Logger) (*Fanout, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "delivery guard required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Fanout{repo: repo, guard: guard, limiter: limiter, metrics: m, logg: logg}, nil
}

// CreateInApp persists one notification per target. Individual failures
// never abort the fan-out; the unique (alert, user) index plus the guard
// make re-runs idempotent.
func (f *Fanout) CreateInApp(ctx context.Context, alert *models.Alert, targets []audience.Target) (InAppOutcome, error) {
	outcome := InAppOutcome{}
	if len(targets) == 0 {
		return outcome, nil
	}

	payload := alert.Payload()
	title := payload.Title
	if title == "" {
		title = fallbackTitle
	}
	message := payload.Body
	if message == "" {
		message = fallbackMessage
	}
	module := enums.ModuleForAudience(alert.Audience)

	for _, target := range targets {
		if err := f.limiter.Wait(ctx); err != nil {
			return outcome, err
		}

		duplicate, err := f.guard.CheckAndMark(ctx, dedupe.ChannelInApp, alert.ID, target.ID)
		if err != nil {
			return outcome, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking delivery guard")
		}
		if duplicate {
			outcome.Created++
			continue
		}

		alertID := alert.ID
		row := &models.Notification{
			ID:       uuid.New(),
			UserID:   target.ID,
			AlertID:  &alertID,
			Type:     enums.NotificationTypeAlert,
			Module:   module,
			Title:    title,
			Message:  message,
			Metadata: notificationMetadata(alert, payload),
		}
		if err := f.repo.Create(ctx, row); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_notifications_alert_user") {
				// A previous run already wrote this row.
				outcome.Created++
				continue
			}
			outcome.Failed++
			logCtx := f.logg.WithFields(ctx, map[string]any{
				"alert_id": alert.ID.String(),
				"user_id":  target.ID.String(),
			})
			f.logg.Error(logCtx, "creating in-app notification failed", err)
			continue
		}
		outcome.Created++
	}

	f.metrics.AddInAppCreated(outcome.Created)
	f.metrics.AddInAppFailed(outcome.Failed)
	return outcome, nil
}

func notificationMetadata(alert *models.Alert, payload types.MessageBlock) types.Metadata {
	meta := types.Metadata{"alertId": alert.ID.String()}
	for key, value := range payload.Data {
		meta[key] = value
	}
	return meta
}
