package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
)

type Dispute struct {
	ID                  uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ContractID          uuid.UUID             `gorm:"column:contract_id;type:uuid;not null"`
	RaisedBy            uuid.UUID             `gorm:"column:raised_by;type:uuid;not null"`
	Description         string                `gorm:"column:description;type:text;not null"`
	Status              enums.DisputeStatus   `gorm:"column:status;type:dispute_status;not null"`
	ResolutionNotes     *string               `gorm:"column:resolution_notes"`
	PriorContractStatus *enums.ContractStatus `gorm:"column:prior_contract_status;type:contract_status"`
	ResolvedAt          *time.Time            `gorm:"column:resolved_at"`
	CreatedAt           time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
