package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent records every payment webhook event id that has been applied.
// The row's existence is the idempotency marker.
type WebhookEvent struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID    string          `gorm:"column:event_id;not null;uniqueIndex"`
	Payload    json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	ReceivedAt time.Time       `gorm:"column:received_at;autoCreateTime"`
}
