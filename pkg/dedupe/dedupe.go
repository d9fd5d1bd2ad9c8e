package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ridewell/alertcast-backend/pkg/redis"
)

// Delivery channels tracked by the guard.
const (
	ChannelPush  = "push"
	ChannelInApp = "inapp"
)

// Guard tracks delivered (alert, recipient, channel) triples using Redis SETNX
// with a TTL, so a redelivered job skips recipients that already got the
// message. Keys follow `ac:dedupe:delivery:<channel>:<alert_id>:<user_id>`.
type Guard struct {
	store redis.DedupeStore
	ttl   time.Duration
}

// NewGuard builds a delivery dedupe guard with the given marker TTL.
func NewGuard(store redis.DedupeStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("dedupe store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{
		store: store,
		ttl:   ttl,
	}, nil
}

// CheckAndMark returns true if the recipient was already delivered on the
// channel, and otherwise marks it as delivered for the configured TTL.
func (g *Guard) CheckAndMark(ctx context.Context, channel string, alertID, userID uuid.UUID) (bool, error) {
	key, err := g.deliveryKey(channel, alertID, userID)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Clear removes the marker, re-arming delivery for the recipient.
func (g *Guard) Clear(ctx context.Context, channel string, alertID, userID uuid.UUID) error {
	key, err := g.deliveryKey(channel, alertID, userID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) deliveryKey(channel string, alertID, userID uuid.UUID) (string, error) {
	if channel == "" {
		return "", errors.New("channel is required")
	}
	if alertID == uuid.Nil {
		return "", errors.New("alert id is required")
	}
	if userID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	scope := fmt.Sprintf("delivery:%s", channel)
	return g.store.DedupeKey(scope, fmt.Sprintf("%s:%s", alertID, userID)), nil
}
