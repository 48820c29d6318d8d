package audit

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox/payloads"
)

type inserter interface {
	Insert(ctx context.Context, row *models.AuditLog) (bool, error)
}

// Consumer persists audit_recorded events into audit_logs. The unique
// event_id column makes redelivery harmless.
type Consumer struct {
	repo         inserter
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

func NewConsumer(repo inserter, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("audit subscription required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{repo: repo, subscription: subscription, logg: logg}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.Attributes["event_type"], msg.Data).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	nack bool
}

func (c *Consumer) process(ctx context.Context, eventType string, data []byte) processResult {
	logCtx := c.logg.WithField(ctx, "event_type", eventType)
	if eventType != string(enums.EventAuditRecorded) {
		c.logg.Info(logCtx, "skipping non-audit event")
		return processResult{}
	}

	var payload payloads.AuditRecordedEvent
	envelope, eventID, err := outbox.DecodeEnvelope(data, &payload)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode audit event", err)
		return processResult{}
	}
	logCtx = c.logg.WithEvent(logCtx, eventType, eventID.String())
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"action":    payload.Action,
		"entity_id": payload.EntityID.String(),
	})

	row, err := buildRow(eventID, envelope, payload)
	if err != nil {
		c.logg.Error(logCtx, "invalid audit event", err)
		return processResult{}
	}

	inserted, err := c.repo.Insert(ctx, row)
	if err != nil {
		c.logg.Error(logCtx, "audit insert failed", err)
		return processResult{nack: true}
	}
	if !inserted {
		c.logg.Info(logCtx, "audit event already recorded")
	}
	return processResult{}
}

func buildRow(eventID uuid.UUID, envelope outbox.PayloadEnvelope, payload payloads.AuditRecordedEvent) (*models.AuditLog, error) {
	if payload.Action == "" || payload.EntityID == uuid.Nil {
		return nil, fmt.Errorf("action and entity id are required")
	}
	row := &models.AuditLog{
		ID:         uuid.New(),
		EventID:    eventID,
		Action:     string(payload.Action),
		EntityType: payload.EntityType,
		EntityID:   payload.EntityID,
		OccurredAt: envelope.OccurredAt.UTC(),
	}
	if envelope.Actor != nil {
		if envelope.Actor.UserID != uuid.Nil {
			actorID := envelope.Actor.UserID
			row.ActorID = &actorID
		}
		if envelope.Actor.Role != "" {
			role := envelope.Actor.Role
			row.ActorRole = &role
		}
	}
	if len(payload.Metadata) > 0 {
		raw, err := json.Marshal(payload.Metadata)
		if err != nil {
			return nil, err
		}
		row.Metadata = raw
	}
	return row, nil
}
