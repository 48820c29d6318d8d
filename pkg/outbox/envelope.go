package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event. System actors (webhooks, cron)
// carry a nil UserID.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// NewActor returns nil for anonymous callers so envelopes omit the actor.
func NewActor(userID uuid.UUID, role string) *ActorRef {
	if userID == uuid.Nil && role == "" {
		return nil
	}
	return &ActorRef{UserID: userID, Role: role}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope unwraps a published outbox message into payload and returns
// the envelope together with its parsed event id.
func DecodeEnvelope(data []byte, payload any) (PayloadEnvelope, uuid.UUID, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return envelope, uuid.Nil, fmt.Errorf("decode envelope: %w", err)
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return envelope, uuid.Nil, fmt.Errorf("invalid event id %q: %w", envelope.EventID, err)
	}
	if payload != nil {
		if err := json.Unmarshal(envelope.Data, payload); err != nil {
			return envelope, eventID, fmt.Errorf("decode payload: %w", err)
		}
	}
	return envelope, eventID, nil
}
