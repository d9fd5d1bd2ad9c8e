package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/ridewell/alertcast-backend/pkg/logger"
)

const (
	EventAlertFinished = "alert.finished"

	defaultPublishTimeout = 10 * time.Second
)

// AlertFinishedEvent announces that an alert reached a terminal status.
type AlertFinishedEvent struct {
	AlertID       uuid.UUID `json:"alertId"`
	Status        string    `json:"status"`
	TotalTargets  int       `json:"totalTargets"`
	Sent          int       `json:"sent"`
	Failed        int       `json:"failed"`
	InvalidTokens int       `json:"invalidTokens"`
	InAppCreated  int       `json:"inAppCreated"`
	FinishedAt    time.Time `json:"finishedAt"`
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// EventPublisher emits alert lifecycle events. Publishing is best effort;
// callers log failures and move on.
type EventPublisher struct {
	pub  publisher
	logg *logger.Logger
}

func NewEventPublisher(client *Client, logg *logger.Logger) (*EventPublisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	pub := newGCPPublisher(client.LifecyclePublisher())
	if pub == nil {
		return nil, errors.New("lifecycle publisher not configured")
	}
	return &EventPublisher{pub: pub, logg: logg}, nil
}

func newEventPublisherForTest(pub publisher, logg *logger.Logger) *EventPublisher {
	return &EventPublisher{pub: pub, logg: logg}
}

// PublishAlertFinished emits one finished event for the alert.
func (p *EventPublisher) PublishAlertFinished(ctx context.Context, event AlertFinishedEvent) error {
	if event.FinishedAt.IsZero() {
		event.FinishedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_type":  EventAlertFinished,
			"alert_id":    event.AlertID.String(),
			"status":      event.Status,
			"finished_at": event.FinishedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := p.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return err
	}

	logCtx := p.logg.WithAlertID(ctx, event.AlertID.String())
	p.logg.Info(logCtx, "alert lifecycle event published")
	return nil
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
