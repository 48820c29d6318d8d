package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
)

// Contract is the agreement between a buyer and the farmer owning a listing.
type Contract struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ListingID      uuid.UUID            `gorm:"column:listing_id;type:uuid;not null"`
	BuyerID        uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null"`
	FarmerID       uuid.UUID            `gorm:"column:farmer_id;type:uuid;not null"`
	AgreedQuantity decimal.Decimal      `gorm:"column:agreed_quantity;type:numeric(12,3);not null"`
	PricePerUnit   decimal.Decimal      `gorm:"column:price_per_unit;type:numeric(12,2);not null"`
	TotalValue     decimal.Decimal      `gorm:"column:total_value;type:numeric(14,2);not null"`
	StartDate      time.Time            `gorm:"column:start_date;not null"`
	EndDate        *time.Time           `gorm:"column:end_date"`
	Status         enums.ContractStatus `gorm:"column:status;type:contract_status;not null"`
	SignedAt       *time.Time           `gorm:"column:signed_at"`
	DocumentRef    *string              `gorm:"column:document_ref"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// IsParticipant reports whether the user is the buyer or the farmer.
func (c Contract) IsParticipant(userID uuid.UUID) bool {
	return userID != uuid.Nil && (c.BuyerID == userID || c.FarmerID == userID)
}

// Counterparty returns the other participant.
func (c Contract) Counterparty(userID uuid.UUID) uuid.UUID {
	if userID == c.BuyerID {
		return c.FarmerID
	}
	return c.BuyerID
}
