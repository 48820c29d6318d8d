package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
)

// EscrowTransaction holds the funds backing exactly one contract.
type EscrowTransaction struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ContractID       uuid.UUID          `gorm:"column:contract_id;type:uuid;not null;uniqueIndex"`
	Amount           decimal.Decimal    `gorm:"column:amount;type:numeric(14,2);not null"`
	Status           enums.EscrowStatus `gorm:"column:status;type:escrow_status;not null"`
	PaymentReference string             `gorm:"column:payment_reference;not null;uniqueIndex"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
