package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ridewell/alertcast-backend/internal/audience"
	"github.com/ridewell/alertcast-backend/pkg/dedupe"
	"github.com/ridewell/alertcast-backend/pkg/db/models"
	pkgerrors "github.com/ridewell/alertcast-backend/pkg/errors"
	"github.com/ridewell/alertcast-backend/pkg/logger"
	"github.com/ridewell/alertcast-backend/pkg/metrics"
	"github.com/ridewell/alertcast-backend/pkg/push"
)

const evictionChunkSize = 100

// PushSender is the slice of the push client the dispatcher needs.
type PushSender interface {
	SendMulticast(ctx context.Context, req push.MulticastRequest) (*push.MulticastResponse, error)
}

// TokenCleaner evicts permanently rejected device tokens.
type TokenCleaner interface {
	ClearDeviceToken(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// DeliveryGuard is the redis-backed per-recipient dedupe surface.
type DeliveryGuard interface {
	CheckAndMark(ctx context.Context, channel string, alertID, userID uuid.UUID) (bool, error)
	Clear(ctx context.Context, channel string, alertID, userID uuid.UUID) error
}

// PushOutcome aggregates push delivery counters for one alert.
type PushOutcome struct {
	Sent          int
	Failed        int
	InvalidTokens int
}

// Dispatcher fans an alert out to the push provider in batches.
type Dispatcher struct {
	sender        PushSender
	tokens        TokenCleaner
	guard         DeliveryGuard
	metrics       *metrics.DeliveryMetrics
	logg          *logger.Logger
	batchSize     int
	batchDelay    time.Duration
	evictionLimit int
}

// DispatcherOptions bundle the tunables for batch fan-out.
type DispatcherOptions struct {
	BatchSize     int
	BatchDelay    time.Duration
	EvictionLimit int
}

func NewDispatcher(sender PushSender, tokens TokenCleaner, guard DeliveryGuard, m *metrics.DeliveryMetrics, logg *logger.Logger, opts DispatcherOptions) (*Dispatcher, error) {
	if sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "push sender required")
	}
	if tokens == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "token cleaner required")
	}
	if guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "delivery guard required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.EvictionLimit <= 0 {
		opts.EvictionLimit = 4
	}
	return &Dispatcher{
		sender:        sender,
		tokens:        tokens,
		guard:         guard,
		metrics:       m,
		logg:          logg,
		batchSize:     opts.BatchSize,
		batchDelay:    opts.BatchDelay,
		evictionLimit: opts.EvictionLimit,
	}, nil
}

// SendPush delivers the alert payload to every push-eligible target.
// Recipients already marked by the guard count as sent. Guard marks are
// re-armed for every recipient who did not actually receive the push —
// per-recipient provider failures, whole-batch failures, and targets left
// unsent when the call aborts early — so a redelivered job retries exactly
// those recipients.
func (d *Dispatcher) SendPush(ctx context.Context, alert *models.Alert, targets []audience.Target) (PushOutcome, error) {
	outcome := PushOutcome{}
	if len(targets) == 0 {
		return outcome, nil
	}

	pending := make([]audience.Target, 0, len(targets))
	for _, target := range targets {
		duplicate, err := d.guard.CheckAndMark(ctx, dedupe.ChannelPush, alert.ID, target.ID)
		if err != nil {
			d.rearmGuards(ctx, alert.ID, pending)
			return outcome, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking delivery guard")
		}
		if duplicate {
			outcome.Sent++
			continue
		}
		pending = append(pending, target)
	}

	payload := alert.Payload()
	evict := make([]uuid.UUID, 0)

	for start := 0; start < len(pending); start += d.batchSize {
		end := start + d.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		if start > 0 && d.batchDelay > 0 {
			timer := time.NewTimer(d.batchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				d.rearmGuards(context.WithoutCancel(ctx), alert.ID, pending[start:])
				return outcome, ctx.Err()
			case <-timer.C:
			}
		}

		tokens := make([]string, len(batch))
		for i, target := range batch {
			tokens[i] = target.DeviceToken
		}

		resp, err := d.sender.SendMulticast(ctx, push.MulticastRequest{
			Tokens: tokens,
			Title:  payload.Title,
			Body:   payload.Body,
			Data:   pushData(alert, payload.Data),
		})
		if err != nil {
			// The whole batch failed; nothing reached the provider.
			outcome.Failed += len(batch)
			d.metrics.AddPushFailed(len(batch))
			d.rearmGuards(ctx, alert.ID, batch)
			logCtx := d.logg.WithAlertID(ctx, alert.ID.String())
			d.logg.Error(logCtx, "multicast batch failed", err)
			continue
		}

		sent, failedTargets, badTokenUsers := classifyBatch(batch, resp.Results)
		outcome.Sent += sent
		outcome.Failed += len(failedTargets)
		outcome.InvalidTokens += len(badTokenUsers)
		evict = append(evict, badTokenUsers...)

		if len(failedTargets) > 0 {
			d.rearmGuards(ctx, alert.ID, failedTargets)
		}

		d.metrics.AddPushSent(sent)
		d.metrics.AddPushFailed(len(failedTargets))
	}

	if len(evict) > 0 {
		d.evictTokens(ctx, alert.ID, evict)
	}

	return outcome, nil
}

// classifyBatch maps per-token provider results back to recipients.
// Results arrive in token order. Failed recipients come back as targets so
// the caller can re-arm their guard marks; a permanent token failure also
// flags the user for eviction.
func classifyBatch(batch []audience.Target, results []push.SendResult) (sent int, failed []audience.Target, badTokenUsers []uuid.UUID) {
	for i, result := range results {
		if i >= len(batch) {
			break
		}
		if result.Success {
			sent++
			continue
		}
		failed = append(failed, batch[i])
		if push.PermanentTokenFailure(result.ErrorCode) {
			badTokenUsers = append(badTokenUsers, batch[i].ID)
		}
	}
	return sent, failed, badTokenUsers
}

func (d *Dispatcher) rearmGuards(ctx context.Context, alertID uuid.UUID, batch []audience.Target) {
	for _, target := range batch {
		if err := d.guard.Clear(ctx, dedupe.ChannelPush, alertID, target.ID); err != nil {
			logCtx := d.logg.WithAlertID(ctx, alertID.String())
			d.logg.Warn(logCtx, "re-arming delivery guard failed")
		}
	}
}

func (d *Dispatcher) evictTokens(ctx context.Context, alertID uuid.UUID, ids []uuid.UUID) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.evictionLimit)

	for start := 0; start < len(ids); start += evictionChunkSize {
		end := start + evictionChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		group.Go(func() error {
			if _, err := d.tokens.ClearDeviceToken(groupCtx, chunk); err != nil {
				logCtx := d.logg.WithAlertID(groupCtx, alertID.String())
				d.logg.Error(logCtx, "token eviction failed", err)
			}
			return nil
		})
	}

	_ = group.Wait()
	d.metrics.AddTokensEvicted(len(ids))
}

func pushData(alert *models.Alert, extra map[string]string) map[string]string {
	data := map[string]string{
		"alertId": alert.ID.String(),
		"type":    "alert",
	}
	for key, value := range extra {
		data[key] = value
	}
	return data
}
