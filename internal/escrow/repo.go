package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/pkg/db"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
)

// Repository persists escrow_transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, escrow *models.EscrowTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error)
	FindByContract(ctx context.Context, contractID uuid.UUID) (*models.EscrowTransaction, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error)
	LockByContract(ctx context.Context, contractID uuid.UUID) (*models.EscrowTransaction, error)
	LockByPaymentReference(ctx context.Context, reference string) (*models.EscrowTransaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.EscrowStatus) error
	ListAutoReleaseCandidates(ctx context.Context, endedBefore time.Time, limit int) ([]uuid.UUID, error)
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

func (r *repository) Create(ctx context.Context, escrow *models.EscrowTransaction) error {
	if escrow.ID == uuid.Nil {
		escrow.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(escrow).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	return r.first(r.db.WithContext(ctx), "id = ?", id)
}

func (r *repository) FindByContract(ctx context.Context, contractID uuid.UUID) (*models.EscrowTransaction, error) {
	return r.first(r.db.WithContext(ctx), "contract_id = ?", contractID)
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	return r.first(db.ForUpdate(r.db.WithContext(ctx)), "id = ?", id)
}

func (r *repository) LockByContract(ctx context.Context, contractID uuid.UUID) (*models.EscrowTransaction, error) {
	return r.first(db.ForUpdate(r.db.WithContext(ctx)), "contract_id = ?", contractID)
}

func (r *repository) LockByPaymentReference(ctx context.Context, reference string) (*models.EscrowTransaction, error) {
	return r.first(db.ForUpdate(r.db.WithContext(ctx)), "payment_reference = ?", reference)
}

func (r *repository) first(q *gorm.DB, query string, arg any) (*models.EscrowTransaction, error) {
	var escrow models.EscrowTransaction
	if err := q.Where(query, arg).First(&escrow).Error; err != nil {
		return nil, err
	}
	return &escrow, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.EscrowStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.EscrowTransaction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ListAutoReleaseCandidates returns the contracts whose escrow is held, whose
// end date is before the cutoff and which have no open dispute, oldest first.
func (r *repository) ListAutoReleaseCandidates(ctx context.Context, endedBefore time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	q := r.db.WithContext(ctx).
		Table("escrow_transactions AS e").
		Joins("JOIN contracts c ON c.id = e.contract_id").
		Where("e.status = ?", enums.EscrowStatusHeld).
		Where("c.end_date IS NOT NULL AND c.end_date <= ?", endedBefore).
		Where("NOT EXISTS (SELECT 1 FROM disputes d WHERE d.contract_id = e.contract_id AND d.status IN ?)",
			[]enums.DisputeStatus{enums.DisputeStatusOpen, enums.DisputeStatusUnderReview}).
		Order("c.end_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("e.contract_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
