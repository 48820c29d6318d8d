package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
)

// User is the read-only identity projection used to reach people.
type User struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Email     string     `gorm:"column:email;type:text;not null"`
	Phone     *string    `gorm:"column:phone"`
	FullName  string     `gorm:"column:full_name;not null"`
	Role      enums.Role `gorm:"column:role;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
