package enums

// OrderStatus is the aggregate status derived from an order's items.
type OrderStatus string

const (
	OrderStatusPreparing         OrderStatus = "PREPARING"
	OrderStatusShipped           OrderStatus = "SHIPPED"
	OrderStatusDelivered         OrderStatus = "DELIVERED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
	OrderStatusReturnRequested   OrderStatus = "RETURN_REQUESTED"
	OrderStatusReturned          OrderStatus = "RETURNED"
	OrderStatusExchangeRequested OrderStatus = "EXCHANGE_REQUESTED"
	OrderStatusRefunded          OrderStatus = "REFUNDED"
)

var orderStatuses = values[OrderStatus]{
	OrderStatusPreparing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled,
	OrderStatusReturnRequested, OrderStatusReturned, OrderStatusExchangeRequested, OrderStatusRefunded,
}

func (s OrderStatus) String() string { return string(s) }
func (s OrderStatus) IsValid() bool  { return orderStatuses.has(s) }

// IsClosed reports whether the order no longer accepts fulfillment updates.
func (s OrderStatus) IsClosed() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

func ParseOrderStatus(raw string) (OrderStatus, error) {
	return orderStatuses.parse("order status", raw)
}
