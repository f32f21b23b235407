package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when a cart converts into an order.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID          `json:"orderId"`
	CustomerID uuid.UUID          `json:"customerId"`
	TotalPrice decimal.Decimal    `json:"totalPrice"`
	Items      []OrderCreatedItem `json:"items"`
	Status     enums.OrderStatus  `json:"status"`
	CreatedAt  time.Time          `json:"createdAt"`
}

type OrderCreatedItem struct {
	ItemID          uuid.UUID       `json:"itemId"`
	ProductID       uuid.UUID       `json:"productId"`
	SellerID        uuid.UUID       `json:"sellerId"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"priceAtPurchase"`
}

// OrderStatusChangedEvent is emitted whenever the aggregate status moves.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"orderId"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
	Reason  string            `json:"reason,omitempty"`
}

// OrderItemStatusChangedEvent is emitted for every item transition.
type OrderItemStatusChangedEvent struct {
	OrderID   uuid.UUID             `json:"orderId"`
	ItemID    uuid.UUID             `json:"itemId"`
	ProductID uuid.UUID             `json:"productId"`
	From      enums.OrderItemStatus `json:"from"`
	To        enums.OrderItemStatus `json:"to"`
	Restocked int                   `json:"restocked,omitempty"`
}

// OrderCancelledEvent is emitted by administrative order cancellation.
type OrderCancelledEvent struct {
	OrderID        uuid.UUID   `json:"orderId"`
	CancelledItems []uuid.UUID `json:"cancelledItems"`
	Refunded       bool        `json:"refunded"`
	// SettledElsewhere lists items an order refund paid for that another
	// request had already settled by the time the order was locked.
	SettledElsewhere []uuid.UUID `json:"settledElsewhere,omitempty"`
}

// OrderPaidEvent is emitted once the gateway confirms payment.
type OrderPaidEvent struct {
	OrderID         uuid.UUID `json:"orderId"`
	PaymentIntentID string    `json:"paymentIntentId"`
	PaidAt          time.Time `json:"paidAt"`
}

// ExchangeEvent covers exchange requests and approvals.
type ExchangeEvent struct {
	OrderID uuid.UUID `json:"orderId"`
	ActorID uuid.UUID `json:"actorId"`
}

// RefundEvent covers every refund sub-state change on an item.
type RefundEvent struct {
	OrderID      uuid.UUID          `json:"orderId"`
	ItemID       uuid.UUID          `json:"itemId"`
	RefundStatus enums.RefundStatus `json:"refundStatus"`
	AmountMinor  int64              `json:"amountMinor,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	GatewayError string             `json:"gatewayError,omitempty"`
	Attempts     int                `json:"attempts,omitempty"`
}
