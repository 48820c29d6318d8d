package documents

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox/idempotency"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox/payloads"
	"github.com/assuredfarming/assured-farming-backend/pkg/tasks"
)

const consumerName = "document-generator"

type generator interface {
	Generate(ctx context.Context, req payloads.DocumentRequestedEvent) error
}

type onceGuard interface {
	Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error)
}

type Consumer struct {
	generator    generator
	subscription *pubsub.Subscriber
	idempotency  onceGuard
	maxAttempts  int
	logg         *logger.Logger
}

func NewConsumer(g generator, subscription *pubsub.Subscriber, guard onceGuard, maxAttempts int, logg *logger.Logger) (*Consumer, error) {
	if g == nil {
		return nil, fmt.Errorf("document generator required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("document subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{generator: g, subscription: subscription, idempotency: guard, maxAttempts: maxAttempts, logg: logg}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.Attributes["event_type"], msg.Data, msg.DeliveryAttempt) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process reports whether the message should be redelivered.
func (c *Consumer) process(ctx context.Context, eventType string, data []byte, attempt *int) bool {
	logCtx := c.logg.WithField(ctx, "event_type", eventType)
	if eventType != string(enums.EventDocumentRequested) {
		c.logg.Info(logCtx, "skipping non-document event")
		return false
	}
	var req payloads.DocumentRequestedEvent
	_, eventID, err := outbox.DecodeEnvelope(data, &req)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode document event", err)
		return false
	}
	logCtx = c.logg.WithField(c.logg.WithEvent(logCtx, eventType, eventID.String()), "kind", req.Kind)

	ran, err := c.idempotency.Once(ctx, consumerName, eventID, func(ctx context.Context) error {
		return c.generator.Generate(ctx, req)
	})
	switch {
	case err == nil:
		if !ran {
			c.logg.Info(logCtx, "document event already handled")
		}
		return false
	case errors.Is(err, idempotency.ErrInFlight):
		c.logg.Info(logCtx, "document request still in flight, redelivering later")
		return true
	case tasks.IsPermanent(err):
		c.logg.Error(logCtx, "document request dropped", err)
		return false
	case tasks.DeliveryExhausted(attempt, c.maxAttempts):
		c.logg.Error(logCtx, "document delivery attempts exhausted", err)
		return false
	default:
		c.logg.Error(logCtx, "document generation failed", err)
		return true
	}
}
