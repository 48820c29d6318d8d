package models

import (
	"time"

	"github.com/google/uuid"
)

// Shipment tracks delivery of the contracted goods.
type Shipment struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ContractID   uuid.UUID  `gorm:"column:contract_id;type:uuid;not null;uniqueIndex"`
	PickupDate   *time.Time `gorm:"column:pickup_date"`
	DeliveryDate *time.Time `gorm:"column:delivery_date"`
	TrackingID   *string    `gorm:"column:tracking_id"`
	Delivered    bool       `gorm:"column:delivered;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
