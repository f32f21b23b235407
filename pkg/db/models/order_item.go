package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// OrderItem is a single order line with its own fulfillment and refund state.
// Quantity and PriceAtPurchase are fixed when the order is placed.
type OrderItem struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID         uuid.UUID             `gorm:"column:product_id;type:uuid;not null;index"`
	Product           *Product              `gorm:"foreignKey:ProductID;references:ID"`
	SellerID          uuid.UUID             `gorm:"column:seller_id;type:uuid;not null;index"`
	ProductName       string                `gorm:"column:product_name;not null"`
	Quantity          int                   `gorm:"column:quantity;not null"`
	PriceAtPurchase   decimal.Decimal       `gorm:"column:price_at_purchase;type:numeric(12,2);not null;<-:create"`
	Status            enums.OrderItemStatus `gorm:"column:status;type:text;not null"`
	RefundStatus      *enums.RefundStatus   `gorm:"column:refund_status;type:text"`
	RefundReason      *string               `gorm:"column:refund_reason"`
	RefundRequestedAt *time.Time            `gorm:"column:refund_requested_at"`
	RefundProcessedAt *time.Time            `gorm:"column:refund_processed_at"`
	RefundAttempts    int                   `gorm:"column:refund_attempts;not null;default:0"`
	RefundLastError   *string               `gorm:"column:refund_last_error"`
	GatewayRefundID   *string               `gorm:"column:gateway_refund_id"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// Subtotal is PriceAtPurchase times Quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
