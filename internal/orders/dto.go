package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// OrderSummary is the row returned by the order lists.
type OrderSummary struct {
	ID         uuid.UUID         `json:"id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	Status     enums.OrderStatus `json:"status"`
	TotalPrice decimal.Decimal   `json:"total_price"`
	TotalItems int               `json:"total_items"`
	Paid       bool              `json:"paid"`
	CreatedAt  time.Time         `json:"created_at"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func summarize(order models.Order) OrderSummary {
	total := 0
	for _, item := range order.Items {
		total += item.Quantity
	}
	return OrderSummary{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Status:     order.Status,
		TotalPrice: order.TotalPrice,
		TotalItems: total,
		Paid:       order.IsPaid(),
		CreatedAt:  order.CreatedAt,
	}
}
