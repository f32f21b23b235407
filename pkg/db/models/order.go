package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Order is the customer purchase; its status is derived from Items.
type Order struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID        uuid.UUID         `gorm:"column:customer_id;type:uuid;not null;index"`
	Items             []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	ShippingAddress   types.Address     `gorm:"column:shipping_address;type:jsonb;not null"`
	TotalPrice        decimal.Decimal   `gorm:"column:total_price;type:numeric(12,2);not null"`
	Status            enums.OrderStatus `gorm:"column:status;type:text;not null"`
	PaymentIntentID   *string           `gorm:"column:payment_intent_id"`
	CheckoutSessionID *string           `gorm:"column:checkout_session_id;uniqueIndex:ux_orders_checkout_session"`
	PaidAt            *time.Time        `gorm:"column:paid_at"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// IsPaid reports whether the gateway confirmed payment for the order.
func (o Order) IsPaid() bool {
	return o.PaymentIntentID != nil && *o.PaymentIntentID != ""
}
