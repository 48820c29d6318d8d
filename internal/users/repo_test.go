package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/pkg/db/dbtest"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	pkgerrors "github.com/assuredfarming/assured-farming-backend/pkg/errors"
	"github.com/assuredfarming/assured-farming-backend/pkg/tasks"
)

func TestRepositoryFindByID(t *testing.T) {
	conn := dbtest.Open(t)
	farmer := dbtest.SeedUser(t, conn, enums.RoleFarmer)
	repo := NewRepository(conn)

	got, err := repo.FindByID(context.Background(), farmer.ID)
	require.NoError(t, err)
	assert.Equal(t, farmer.Email, got.Email)
	assert.Equal(t, farmer.FullName, got.FullName)
	assert.Equal(t, enums.RoleFarmer, got.Role)
}

func TestRepositoryFindByIDMissingIsPermanent(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))

	_, err := repo.FindByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	assert.True(t, tasks.IsPermanent(err), "a missing recipient will never appear on retry")

	_, err = repo.FindByID(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
