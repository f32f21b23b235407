package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the seller listing whose stock the inventory ledger guards.
type Product struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SellerID       uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index"`
	Name           string          `gorm:"column:name;not null"`
	Description    *string         `gorm:"column:description"`
	Price          decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Stock          int             `gorm:"column:stock;not null;default:0"`
	IsActive       bool            `gorm:"column:is_active;not null;default:true"`
	DeletedByAdmin bool            `gorm:"column:deleted_by_admin;not null;default:false"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Purchasable reports whether new reservations may be taken against the product.
func (p Product) Purchasable() bool {
	return p.IsActive && !p.DeletedByAdmin
}
