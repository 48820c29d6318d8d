package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox/idempotency"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox/payloads"
	"github.com/assuredfarming/assured-farming-backend/pkg/tasks"
)

const consumerName = "notification-dispatcher"

type dispatcher interface {
	Dispatch(ctx context.Context, req payloads.NotificationRequestedEvent) error
}

type onceGuard interface {
	Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error)
}

// Consumer turns notification_requested events into email and SMS.
type Consumer struct {
	dispatcher   dispatcher
	subscription *pubsub.Subscriber
	idempotency  onceGuard
	maxAttempts  int
	logg         *logger.Logger
}

// NewConsumer builds the notification consumer. maxAttempts caps Pub/Sub
// redeliveries before a failing message is logged and acked.
func NewConsumer(d dispatcher, subscription *pubsub.Subscriber, guard onceGuard, maxAttempts int, logg *logger.Logger) (*Consumer, error) {
	if d == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		dispatcher:   d,
		subscription: subscription,
		idempotency:  guard,
		maxAttempts:  maxAttempts,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.Attributes["event_type"], msg.Data, msg.DeliveryAttempt).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	nack bool
}

func (c *Consumer) process(ctx context.Context, eventType string, data []byte, attempt *int) processResult {
	logCtx := c.logg.WithField(ctx, "event_type", eventType)
	if eventType != string(enums.EventNotificationRequested) {
		c.logg.Info(logCtx, "skipping non-notification event")
		return processResult{}
	}

	var req payloads.NotificationRequestedEvent
	_, eventID, err := outbox.DecodeEnvelope(data, &req)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode notification event", err)
		return processResult{}
	}
	logCtx = c.logg.WithField(c.logg.WithEvent(logCtx, eventType, eventID.String()), "template", req.Template)
	if req.ContractID != uuid.Nil {
		logCtx = c.logg.WithContractID(logCtx, req.ContractID.String())
	}

	// Channels are tracked separately so a redelivery only resends the ones
	// that have not gone out yet.
	var retry error
	inFlight := false
	for _, channel := range channelsFor(req) {
		single := req
		single.Channels = []enums.NotificationChannel{channel}
		chCtx := c.logg.WithField(logCtx, "channel", channel)
		ran, err := c.idempotency.Once(ctx, consumerName+":"+string(channel), eventID, func(ctx context.Context) error {
			return c.dispatcher.Dispatch(ctx, single)
		})
		switch {
		case err == nil && !ran:
			c.logg.Info(chCtx, "notification already dispatched")
		case err == nil:
		case errors.Is(err, idempotency.ErrInFlight):
			inFlight = true
		case tasks.IsPermanent(err):
			c.logg.Error(chCtx, "notification dropped", err)
		default:
			retry = multierr.Append(retry, fmt.Errorf("%s: %w", channel, err))
		}
	}

	switch {
	case retry != nil && tasks.DeliveryExhausted(attempt, c.maxAttempts):
		c.logg.Error(logCtx, "notification delivery attempts exhausted", retry)
		return processResult{}
	case retry != nil:
		c.logg.Error(logCtx, "notification dispatch failed", retry)
		return processResult{nack: true}
	case inFlight:
		c.logg.Info(logCtx, "notification still in flight, redelivering later")
		return processResult{nack: true}
	default:
		return processResult{}
	}
}
