package enums

// OrderItemStatus tracks fulfillment of a single order line.
type OrderItemStatus string

const (
	OrderItemStatusPreparing         OrderItemStatus = "PREPARING"
	OrderItemStatusShipped           OrderItemStatus = "SHIPPED"
	OrderItemStatusDelivered         OrderItemStatus = "DELIVERED"
	OrderItemStatusCancelled         OrderItemStatus = "CANCELLED"
	OrderItemStatusCancelledBySeller OrderItemStatus = "CANCELLED_BY_SELLER"
	OrderItemStatusCancelledByAdmin  OrderItemStatus = "CANCELLED_BY_ADMIN"
	OrderItemStatusExchanged         OrderItemStatus = "EXCHANGED"
	OrderItemStatusRefunded          OrderItemStatus = "REFUNDED"
)

var itemStatuses = values[OrderItemStatus]{
	OrderItemStatusPreparing, OrderItemStatusShipped, OrderItemStatusDelivered,
	OrderItemStatusCancelled, OrderItemStatusCancelledBySeller, OrderItemStatusCancelledByAdmin,
	OrderItemStatusExchanged, OrderItemStatusRefunded,
}

func (s OrderItemStatus) String() string { return string(s) }
func (s OrderItemStatus) IsValid() bool  { return itemStatuses.has(s) }

// IsCancelled is true for every cancellation terminal, whoever cancelled.
func (s OrderItemStatus) IsCancelled() bool {
	switch s {
	case OrderItemStatusCancelled, OrderItemStatusCancelledBySeller, OrderItemStatusCancelledByAdmin:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s OrderItemStatus) IsTerminal() bool {
	return s.IsCancelled() || s == OrderItemStatusExchanged || s == OrderItemStatusRefunded
}

func ParseOrderItemStatus(raw string) (OrderItemStatus, error) {
	return itemStatuses.parse("order item status", raw)
}
