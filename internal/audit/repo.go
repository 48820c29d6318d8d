package audit

import (
	"context"

	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/pkg/db"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// Insert stores the row and reports false when its event id was already recorded.
func (r *Repository) Insert(ctx context.Context, row *models.AuditLog) (bool, error) {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if db.IsUniqueViolation(err, "ux_audit_logs_event_id", "audit_logs.event_id") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
