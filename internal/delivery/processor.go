package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ridewell/alertcast-backend/internal/audience"
	"github.com/ridewell/alertcast-backend/pkg/db/models"
	"github.com/ridewell/alertcast-backend/pkg/enums"
	pkgerrors "github.com/ridewell/alertcast-backend/pkg/errors"
	"github.com/ridewell/alertcast-backend/pkg/logger"
	"github.com/ridewell/alertcast-backend/pkg/metrics"
	"github.com/ridewell/alertcast-backend/pkg/pubsub"
	"github.com/ridewell/alertcast-backend/pkg/queue"
)

// AlertStore is the slice of the alerts repository the processor drives.
type AlertStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	MarkInProgress(ctx context.Context, id uuid.UUID) (bool, error)
	FinalizeTx(tx *gorm.DB, id uuid.UUID, status enums.AlertStatus, stats models.AlertStats, lastError *string) (bool, error)
}

// AudienceResolver expands an alert into delivery targets.
type AudienceResolver interface {
	Resolve(ctx context.Context, alert *models.Alert) (*audience.Resolution, error)
}

// PushDispatcher fans the alert out over the push channel.
type PushDispatcher interface {
	SendPush(ctx context.Context, alert *models.Alert, targets []audience.Target) (PushOutcome, error)
}

// InAppFanout persists the in-app notification rows.
type InAppFanout interface {
	CreateInApp(ctx context.Context, alert *models.Alert, targets []audience.Target) (InAppOutcome, error)
}

// LifecyclePublisher emits terminal-status events. May be nil when the
// event stream is disabled.
type LifecyclePublisher interface {
	PublishAlertFinished(ctx context.Context, event pubsub.AlertFinishedEvent) error
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Processor executes one delivery job end to end: claim the alert, resolve
// its audience, deliver on both channels, and finalize stats and status in
// a single transaction.
type Processor struct {
	tx         TxRunner
	alerts     AlertStore
	resolver   AudienceResolver
	dispatcher PushDispatcher
	fanout     InAppFanout
	events     LifecyclePublisher
	metrics    *metrics.DeliveryMetrics
	logg       *logger.Logger
}

func NewProcessor(tx TxRunner, alerts AlertStore, resolver AudienceResolver, dispatcher PushDispatcher, fanout InAppFanout, events LifecyclePublisher, m *metrics.DeliveryMetrics, logg *logger.Logger) (*Processor, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tx runner required")
	}
	if alerts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "alert store required")
	}
	if resolver == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "audience resolver required")
	}
	if dispatcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "push dispatcher required")
	}
	if fanout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "in-app fanout required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Processor{
		tx:         tx,
		alerts:     alerts,
		resolver:   resolver,
		dispatcher: dispatcher,
		fanout:     fanout,
		events:     events,
		metrics:    m,
		logg:       logg,
	}, nil
}

// Process handles one delivery job. A missing alert is non-retryable; a
// terminal alert makes redelivery a no-op. Everything else that fails
// returns an error so the queue can retry with backoff.
func (p *Processor) Process(ctx context.Context, alertID uuid.UUID) error {
	started := time.Now()
	logCtx := p.logg.WithAlertID(ctx, alertID.String())

	alert, err := p.alerts.FindByID(ctx, alertID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading alert")
	}
	if alert == nil {
		return queue.NonRetryable(fmt.Errorf("alert %s does not exist", alertID))
	}
	if alert.Status.IsTerminal() {
		p.logg.Info(logCtx, "alert already finalized, skipping redelivery")
		return nil
	}

	claimed, err := p.alerts.MarkInProgress(ctx, alertID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claiming alert")
	}
	if !claimed {
		// Not pending anymore. A crashed prior attempt leaves the row
		// in_progress; the guard-protected channels make resuming safe.
		reloaded, err := p.alerts.FindByID(ctx, alertID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reloading alert")
		}
		if reloaded == nil || reloaded.Status.IsTerminal() {
			return nil
		}
		alert = reloaded
	}

	resolution, err := p.resolver.Resolve(ctx, alert)
	if err != nil {
		return err
	}

	pushOutcome, err := p.dispatcher.SendPush(ctx, alert, resolution.PushTargets)
	if err != nil {
		return err
	}

	inAppOutcome, err := p.fanout.CreateInApp(ctx, alert, resolution.AllTargets)
	if err != nil {
		return err
	}

	stats := models.AlertStats{
		TotalTargets:  len(resolution.PushTargets),
		Sent:          pushOutcome.Sent,
		Failed:        pushOutcome.Failed,
		InvalidTokens: pushOutcome.InvalidTokens,
		InAppCreated:  inAppOutcome.Created,
		InAppFailed:   inAppOutcome.Failed,
	}
	status := finalStatus(stats)
	lastError := finalError(stats)

	err = p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		finalized, err := p.alerts.FinalizeTx(tx, alertID, status, stats, lastError)
		if err != nil {
			return err
		}
		if !finalized {
			p.logg.Warn(logCtx, "alert finalized by a concurrent worker")
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalizing alert")
	}

	p.metrics.ObserveProcessing(string(status), time.Since(started))

	fields := map[string]any{
		"status":         status,
		"total_targets":  stats.TotalTargets,
		"sent":           stats.Sent,
		"failed":         stats.Failed,
		"invalid_tokens": stats.InvalidTokens,
		"in_app_created": stats.InAppCreated,
	}
	p.logg.Info(p.logg.WithFields(logCtx, fields), "alert delivery finished")

	if p.events != nil {
		event := pubsub.AlertFinishedEvent{
			AlertID:       alertID,
			Status:        string(status),
			TotalTargets:  stats.TotalTargets,
			Sent:          stats.Sent,
			Failed:        stats.Failed,
			InvalidTokens: stats.InvalidTokens,
			InAppCreated:  stats.InAppCreated,
		}
		if err := p.events.PublishAlertFinished(ctx, event); err != nil {
			// Best effort; the alert itself is already finalized.
			p.logg.Warn(p.logg.WithFields(logCtx, map[string]any{"publish_error": err.Error()}), "lifecycle event publish failed")
		}
	}

	return nil
}

// finalStatus derives the terminal alert status from the push counters.
// An alert with zero push targets is considered fully sent; everybody
// still gets their in-app record.
func finalStatus(stats models.AlertStats) enums.AlertStatus {
	switch {
	case stats.TotalTargets == 0:
		return enums.AlertStatusSent
	case stats.Sent == stats.TotalTargets:
		return enums.AlertStatusSent
	case stats.Sent == 0:
		return enums.AlertStatusFailed
	default:
		return enums.AlertStatusPartiallySent
	}
}

func finalError(stats models.AlertStats) *string {
	if stats.Failed == 0 {
		return nil
	}
	msg := fmt.Sprintf("%d of %d push deliveries failed (%d invalid tokens)", stats.Failed, stats.TotalTargets, stats.InvalidTokens)
	return &msg
}
