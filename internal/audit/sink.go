package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox/payloads"
)

// Entry is one state change worth keeping in the audit trail.
type Entry struct {
	Actor      *outbox.ActorRef
	Action     enums.AuditAction
	EntityType enums.OutboxAggregateType
	EntityID   uuid.UUID
	Metadata   map[string]any
}

// Sink records audit entries inside the caller's transaction.
type Sink interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxSink queues entries through the transactional outbox, so an entry
// exists exactly when the state change it describes commits.
type OutboxSink struct {
	outbox emitter
}

func NewOutboxSink(outbox emitter) (*OutboxSink, error) {
	if outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &OutboxSink{outbox: outbox}, nil
}

func (s *OutboxSink) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if entry.Action == "" {
		return fmt.Errorf("audit action required")
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventAuditRecorded,
		AggregateType: entry.EntityType,
		AggregateID:   entry.EntityID,
		Actor:         entry.Actor,
		Data: payloads.AuditRecordedEvent{
			Action:     entry.Action,
			EntityType: string(entry.EntityType),
			EntityID:   entry.EntityID,
			Metadata:   entry.Metadata,
		},
	})
}
