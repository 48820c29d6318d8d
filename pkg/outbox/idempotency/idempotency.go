// Package idempotency keeps task consumers from applying the same outbox
// event twice when Pub/Sub redelivers it.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/assuredfarming/assured-farming-backend/pkg/redis"
)

const (
	markerProcessing = "processing"
	markerDone       = "done"

	// DefaultLease bounds how long a crashed handler blocks redelivery.
	DefaultLease = 10 * time.Minute
)

// ErrInFlight means another delivery of the event is still being handled.
// Consumers should nack and let the redelivery try again.
var ErrInFlight = errors.New("event is being handled by another delivery")

// Manager records per-consumer progress under
// af:idempotency:evt:<consumer>:<event_id>. A delivery first takes a short
// processing lease, then swaps it for a done marker that lives for ttl.
type Manager struct {
	store redis.ReplayStore
	ttl   time.Duration
	lease time.Duration
}

func NewManager(store redis.ReplayStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("processed marker ttl must be positive, got %s", ttl)
	}
	lease := min(DefaultLease, ttl)
	return &Manager{store: store, ttl: ttl, lease: lease}, nil
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}

// Once runs fn unless consumer already completed eventID. It reports whether
// fn ran. A failing fn releases the lease so the next delivery retries. If
// the done marker cannot be written the lease stays, and redeliveries see
// ErrInFlight until it expires.
func (m *Manager) Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}

	acquired, err := m.store.SetNX(ctx, key, markerProcessing, m.lease)
	if err != nil {
		return false, fmt.Errorf("idempotency check: %w", err)
	}
	if !acquired {
		state, err := m.store.Get(ctx, key)
		switch {
		case err != nil:
			return false, fmt.Errorf("idempotency check: %w", err)
		case state == markerProcessing:
			return false, ErrInFlight
		default:
			return false, nil
		}
	}

	if err := fn(ctx); err != nil {
		if delErr := m.store.Del(ctx, key); delErr != nil {
			return true, errors.Join(err, fmt.Errorf("release idempotency lease: %w", delErr))
		}
		return true, err
	}
	_, _ = m.store.SetXX(ctx, key, markerDone, m.ttl)
	return true, nil
}
