package documents

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LoadBundle reads the contract with its listing and both parties.
func (r *Repository) LoadBundle(ctx context.Context, contractID uuid.UUID) (*Bundle, error) {
	var b Bundle
	conn := r.db.WithContext(ctx)
	if err := conn.First(&b.Contract, "id = ?", contractID).Error; err != nil {
		return nil, err
	}
	if err := conn.First(&b.Listing, "id = ?", b.Contract.ListingID).Error; err != nil {
		return nil, fmt.Errorf("listing %s: %w", b.Contract.ListingID, err)
	}
	if err := conn.First(&b.Buyer, "id = ?", b.Contract.BuyerID).Error; err != nil {
		return nil, fmt.Errorf("buyer %s: %w", b.Contract.BuyerID, err)
	}
	if err := conn.First(&b.Farmer, "id = ?", b.Contract.FarmerID).Error; err != nil {
		return nil, fmt.Errorf("farmer %s: %w", b.Contract.FarmerID, err)
	}
	return &b, nil
}

// AttachRef stores ref on the contract unless one is already set. It reports
// whether the row changed.
func (r *Repository) AttachRef(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, ref string) (bool, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	res := conn.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ? AND document_ref IS NULL", contractID).
		Update("document_ref", ref)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
