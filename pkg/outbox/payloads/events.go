package payloads

import (
	"github.com/google/uuid"

	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
)

// NotificationRequestedEvent asks the dispatcher to reach one user.
type NotificationRequestedEvent struct {
	Template    enums.NotificationTemplate  `json:"template"`
	RecipientID uuid.UUID                   `json:"recipient_id"`
	ContractID  uuid.UUID                   `json:"contract_id"`
	Channels    []enums.NotificationChannel `json:"channels"`
	Params      map[string]string           `json:"params,omitempty"`
}

// DocumentKindSignedContract is the only document rendered today.
const DocumentKindSignedContract = "signed_contract"

// DocumentRequestedEvent asks the document worker to render and attach a file.
type DocumentRequestedEvent struct {
	ContractID uuid.UUID `json:"contract_id"`
	Kind       string    `json:"kind"`
}

// AuditRecordedEvent is one entry of the audit trail.
type AuditRecordedEvent struct {
	Action     enums.AuditAction `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   uuid.UUID         `json:"entity_id"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}
