package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
)

// Money is rendered as fixed-point strings so clients never see float noise.

type contractView struct {
	ID             uuid.UUID            `json:"id"`
	ListingID      uuid.UUID            `json:"listing_id"`
	BuyerID        uuid.UUID            `json:"buyer_id"`
	FarmerID       uuid.UUID            `json:"farmer_id"`
	AgreedQuantity string               `json:"agreed_quantity"`
	PricePerUnit   string               `json:"price_per_unit"`
	TotalValue     string               `json:"total_value"`
	StartDate      time.Time            `json:"start_date"`
	EndDate        *time.Time           `json:"end_date,omitempty"`
	Status         enums.ContractStatus `json:"status"`
	SignedAt       *time.Time           `json:"signed_at,omitempty"`
	DocumentRef    *string              `json:"document_ref,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

func newContractView(c *models.Contract) *contractView {
	if c == nil {
		return nil
	}
	return &contractView{
		ID:             c.ID,
		ListingID:      c.ListingID,
		BuyerID:        c.BuyerID,
		FarmerID:       c.FarmerID,
		AgreedQuantity: c.AgreedQuantity.String(),
		PricePerUnit:   c.PricePerUnit.StringFixed(2),
		TotalValue:     c.TotalValue.StringFixed(2),
		StartDate:      c.StartDate,
		EndDate:        c.EndDate,
		Status:         c.Status,
		SignedAt:       c.SignedAt,
		DocumentRef:    c.DocumentRef,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

type proposalView struct {
	ID           uuid.UUID `json:"id"`
	ContractID   uuid.UUID `json:"contract_id"`
	ProposerID   uuid.UUID `json:"proposer_id"`
	PricePerUnit string    `json:"price_per_unit"`
	Message      string    `json:"message,omitempty"`
	Accepted     bool      `json:"accepted"`
	CreatedAt    time.Time `json:"created_at"`
}

func newProposalView(p *models.PriceProposal) *proposalView {
	if p == nil {
		return nil
	}
	return &proposalView{
		ID:           p.ID,
		ContractID:   p.ContractID,
		ProposerID:   p.ProposerID,
		PricePerUnit: p.PricePerUnit.StringFixed(2),
		Message:      p.Message,
		Accepted:     p.Accepted,
		CreatedAt:    p.CreatedAt,
	}
}

func newProposalViews(items []models.PriceProposal) []*proposalView {
	out := make([]*proposalView, 0, len(items))
	for i := range items {
		out = append(out, newProposalView(&items[i]))
	}
	return out
}

type escrowView struct {
	ID               uuid.UUID          `json:"id"`
	ContractID       uuid.UUID          `json:"contract_id"`
	Amount           string             `json:"amount"`
	Status           enums.EscrowStatus `json:"status"`
	PaymentReference string             `json:"payment_reference"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func newEscrowView(e *models.EscrowTransaction) *escrowView {
	if e == nil {
		return nil
	}
	return &escrowView{
		ID:               e.ID,
		ContractID:       e.ContractID,
		Amount:           e.Amount.StringFixed(2),
		Status:           e.Status,
		PaymentReference: e.PaymentReference,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

type shipmentView struct {
	ID           uuid.UUID  `json:"id"`
	ContractID   uuid.UUID  `json:"contract_id"`
	PickupDate   *time.Time `json:"pickup_date,omitempty"`
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`
	TrackingID   *string    `json:"tracking_id,omitempty"`
	Delivered    bool       `json:"delivered"`
	CreatedAt    time.Time  `json:"created_at"`
}

func newShipmentView(s *models.Shipment) *shipmentView {
	if s == nil {
		return nil
	}
	return &shipmentView{
		ID:           s.ID,
		ContractID:   s.ContractID,
		PickupDate:   s.PickupDate,
		DeliveryDate: s.DeliveryDate,
		TrackingID:   s.TrackingID,
		Delivered:    s.Delivered,
		CreatedAt:    s.CreatedAt,
	}
}

type disputeView struct {
	ID              uuid.UUID           `json:"id"`
	ContractID      uuid.UUID           `json:"contract_id"`
	RaisedBy        uuid.UUID           `json:"raised_by"`
	Description     string              `json:"description"`
	Status          enums.DisputeStatus `json:"status"`
	ResolutionNotes *string             `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time          `json:"resolved_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func newDisputeView(d *models.Dispute) *disputeView {
	if d == nil {
		return nil
	}
	return &disputeView{
		ID:              d.ID,
		ContractID:      d.ContractID,
		RaisedBy:        d.RaisedBy,
		Description:     d.Description,
		Status:          d.Status,
		ResolutionNotes: d.ResolutionNotes,
		ResolvedAt:      d.ResolvedAt,
		CreatedAt:       d.CreatedAt,
	}
}
