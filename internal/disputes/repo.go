package disputes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/pkg/db"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
)

var openStatuses = []enums.DisputeStatus{enums.DisputeStatusOpen, enums.DisputeStatusUnderReview}

// Repository persists disputes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, dispute *models.Dispute) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.Dispute, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CountOpen(ctx context.Context, contractID uuid.UUID, excluding uuid.UUID) (int64, error)
	OpenPriorStatus(ctx context.Context, contractID uuid.UUID) (*enums.ContractStatus, error)
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

func (r *repository) Create(ctx context.Context, dispute *models.Dispute) error {
	if dispute.ID == uuid.Nil {
		dispute.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(dispute).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := r.db.WithContext(ctx).First(&dispute, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := db.ForUpdate(r.db.WithContext(ctx)).First(&dispute, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("created_at DESC").
		Order("id ASC").
		Find(&disputes).Error
	return disputes, err
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	fields := map[string]any{"updated_at": time.Now().UTC()}
	for k, v := range updates {
		fields[k] = v
	}
	return r.db.WithContext(ctx).
		Model(&models.Dispute{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// CountOpen counts open or under-review disputes on the contract other than excluding.
func (r *repository) CountOpen(ctx context.Context, contractID uuid.UUID, excluding uuid.UUID) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).
		Model(&models.Dispute{}).
		Where("contract_id = ? AND status IN ?", contractID, openStatuses)
	if excluding != uuid.Nil {
		q = q.Where("id <> ?", excluding)
	}
	err := q.Count(&n).Error
	return n, err
}

// OpenPriorStatus returns the contract status remembered by the oldest
// still-open dispute, if any.
func (r *repository) OpenPriorStatus(ctx context.Context, contractID uuid.UUID) (*enums.ContractStatus, error) {
	var dispute models.Dispute
	err := r.db.WithContext(ctx).
		Where("contract_id = ? AND status IN ? AND prior_contract_status IS NOT NULL", contractID, openStatuses).
		Order("created_at ASC").
		Take(&dispute).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dispute.PriorContractStatus, nil
}
