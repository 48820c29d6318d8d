package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceProposal is a counter-offer on a contract's unit price.
type PriceProposal struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ContractID   uuid.UUID       `gorm:"column:contract_id;type:uuid;not null"`
	ProposerID   uuid.UUID       `gorm:"column:proposer_id;type:uuid;not null"`
	PricePerUnit decimal.Decimal `gorm:"column:price_per_unit;type:numeric(12,2);not null"`
	Message      string          `gorm:"column:message;type:text;not null"`
	Accepted     bool            `gorm:"column:accepted;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}
