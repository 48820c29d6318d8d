package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	pkgerrors "github.com/assuredfarming/assured-farming-backend/pkg/errors"
)

// contactColumns is everything notification delivery reads.
var contactColumns = []string{"id", "email", "phone", "full_name", "role"}

// Repository is a read-only view of the identity directory, which another
// service owns.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID returns the contact details for id. A missing user is a
// CodeNotFound error that still matches gorm.ErrRecordNotFound.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	var user models.User
	err := r.db.WithContext(ctx).Select(contactColumns).Where("id = ?", id).Take(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading user")
	}
	return &user, nil
}
