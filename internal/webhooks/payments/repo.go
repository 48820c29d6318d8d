package paymentwebhook

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
)

// EventIDConstraint is the unique constraint claiming an event id.
const EventIDConstraint = "ux_webhook_events_event_id"

// Repository is the webhook_events idempotency ledger.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Exists reports whether eventID has already been claimed.
func (r *Repository) Exists(ctx context.Context, eventID string) (bool, error) {
	var row models.WebhookEvent
	err := r.db.WithContext(ctx).Select("id").Where("event_id = ?", eventID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Claim inserts the ledger row for eventID inside tx. A concurrent claim
// surfaces as a unique violation on event_id.
func (r *Repository) Claim(ctx context.Context, tx *gorm.DB, eventID string, payload json.RawMessage) (*models.WebhookEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	row := &models.WebhookEvent{
		ID:      uuid.New(),
		EventID: eventID,
		Payload: payload,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}
