package contracts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/pagination"
)

// CreateInput carries a buyer's new contract request. Status and total are
// always server-assigned.
type CreateInput struct {
	ListingID    uuid.UUID
	Quantity     decimal.Decimal
	PricePerUnit decimal.Decimal
	StartDate    *time.Time
	EndDate      *time.Time
}

// ProposeInput is a counter-offer on the unit price.
type ProposeInput struct {
	ContractID   uuid.UUID
	PricePerUnit decimal.Decimal
	Message      string
}

// AcceptResult is everything an acceptance produced in one transaction.
type AcceptResult struct {
	Contract *models.Contract          `json:"contract"`
	Proposal *models.PriceProposal     `json:"proposal"`
	Escrow   *models.EscrowTransaction `json:"escrow"`
}

// ListParams filters the caller's contracts. Admins see every contract.
type ListParams struct {
	Status enums.ContractStatus
	pagination.Params
}

type ListResult struct {
	Items  []models.Contract
	Cursor string
}

type listQuery struct {
	participant uuid.UUID
	status      enums.ContractStatus
	limit       int
	cursor      *pagination.Cursor
}
