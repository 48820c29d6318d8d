package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Listing is a farmer's crop offering. Listings are owned by the catalog
// service; this module only reads them.
type Listing struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	FarmerID          uuid.UUID           `gorm:"column:farmer_id;type:uuid;not null"`
	CropName          string              `gorm:"column:crop_name;not null"`
	Unit              string              `gorm:"column:unit;not null"`
	QuantityAvailable decimal.NullDecimal `gorm:"column:quantity_available;type:numeric(12,3)"`
	PriceFloor        decimal.NullDecimal `gorm:"column:price_floor;type:numeric(12,2)"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
}
