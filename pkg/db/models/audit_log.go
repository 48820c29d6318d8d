package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog is a persisted audit record. EventID deduplicates redelivered events.
type AuditLog struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID    uuid.UUID       `gorm:"column:event_id;type:uuid;not null;uniqueIndex"`
	ActorID    *uuid.UUID      `gorm:"column:actor_id;type:uuid"`
	ActorRole  *string         `gorm:"column:actor_role"`
	Action     string          `gorm:"column:action;not null"`
	EntityType string          `gorm:"column:entity_type;not null"`
	EntityID   uuid.UUID       `gorm:"column:entity_id;type:uuid;not null"`
	Metadata   json.RawMessage `gorm:"column:metadata;type:jsonb"`
	OccurredAt time.Time       `gorm:"column:occurred_at;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}
