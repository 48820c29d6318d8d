package contracts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/pkg/db"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
)

// AcceptedProposalIndex guards the single accepted proposal per contract.
const AcceptedProposalIndex = "ux_price_proposals_one_accepted"

// Repository persists contracts and their price proposals.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, contract *models.Contract) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	List(ctx context.Context, query listQuery) ([]models.Contract, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	UpdateContract(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CreateProposal(ctx context.Context, proposal *models.PriceProposal) error
	FindProposal(ctx context.Context, contractID, proposalID uuid.UUID) (*models.PriceProposal, error)
	ListProposals(ctx context.Context, contractID uuid.UUID) ([]models.PriceProposal, error)
	MarkProposalAccepted(ctx context.Context, proposalID uuid.UUID) error
	CountOpenDisputes(ctx context.Context, contractID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, contract *models.Contract) error {
	if contract.ID == uuid.Nil {
		contract.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(contract).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := r.db.WithContext(ctx).First(&contract, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

// List returns contracts newest first, scoped to a participant unless
// query.participant is nil.
func (r *repository) List(ctx context.Context, query listQuery) ([]models.Contract, error) {
	q := r.db.WithContext(ctx).Model(&models.Contract{})
	if query.participant != uuid.Nil {
		q = q.Where("(buyer_id = ? OR farmer_id = ?)", query.participant, query.participant)
	}
	if query.status != "" {
		q = q.Where("status = ?", query.status)
	}

	var rows []models.Contract
	err := q.Scopes(query.cursor.Scope).Limit(query.limit).Find(&rows).Error
	return rows, err
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := db.ForUpdate(r.db.WithContext(ctx)).First(&contract, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

// UpdateContract applies a partial update and stamps updated_at.
func (r *repository) UpdateContract(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	fields := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		fields[k] = v
	}
	fields["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) CreateProposal(ctx context.Context, proposal *models.PriceProposal) error {
	if proposal.ID == uuid.Nil {
		proposal.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(proposal).Error
}

// FindProposal only matches proposals belonging to contractID.
func (r *repository) FindProposal(ctx context.Context, contractID, proposalID uuid.UUID) (*models.PriceProposal, error) {
	var proposal models.PriceProposal
	err := r.db.WithContext(ctx).
		Where("id = ? AND contract_id = ?", proposalID, contractID).
		First(&proposal).Error
	if err != nil {
		return nil, err
	}
	return &proposal, nil
}

func (r *repository) ListProposals(ctx context.Context, contractID uuid.UUID) ([]models.PriceProposal, error) {
	var proposals []models.PriceProposal
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&proposals).Error
	return proposals, err
}

func (r *repository) MarkProposalAccepted(ctx context.Context, proposalID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PriceProposal{}).
		Where("id = ?", proposalID).
		Update("accepted", true).Error
}

func (r *repository) CountOpenDisputes(ctx context.Context, contractID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Dispute{}).
		Where("contract_id = ? AND status IN ?", contractID,
			[]enums.DisputeStatus{enums.DisputeStatusOpen, enums.DisputeStatusUnderReview}).
		Count(&n).Error
	return n, err
}
