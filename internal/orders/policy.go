package orders

import (
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// Operation names a guarded action on an order or one of its items.
type Operation string

const (
	OpView              Operation = "view"
	OpSetItemStatus     Operation = "set_item_status"
	OpCancelItem        Operation = "cancel_item"
	OpUpdateOrderStatus Operation = "update_order_status"
	OpCancelOrder       Operation = "cancel_order"
	OpRefundOrder       Operation = "refund_order"
	OpRequestExchange   Operation = "request_exchange"
	OpApproveExchange   Operation = "approve_exchange"
	OpRequestRefund     Operation = "request_refund"
	OpDecideRefund      Operation = "decide_refund"
)

// CanActOn is the single role and ownership check behind every order
// operation. Item-scoped operations require item; order-scoped ones ignore it.
func CanActOn(actor auth.Actor, op Operation, order *models.Order, item *models.OrderItem) bool {
	if !actor.Valid() || order == nil {
		return false
	}

	switch op {
	case OpView:
		switch {
		case actor.IsAdmin():
			return true
		case actor.IsCustomer():
			return order.CustomerID == actor.UserID
		case actor.IsSeller():
			return sellsAny(order, actor)
		}
		return false

	case OpSetItemStatus, OpCancelItem:
		if item == nil || item.OrderID != order.ID {
			return false
		}
		if actor.IsAdmin() {
			return true
		}
		return actor.IsSeller() && item.SellerID == actor.UserID

	case OpDecideRefund:
		if item == nil || item.OrderID != order.ID {
			return false
		}
		return actor.IsSeller() && item.SellerID == actor.UserID

	case OpUpdateOrderStatus, OpApproveExchange:
		return actor.IsSeller() && sellsAll(order, actor)

	case OpCancelOrder, OpRefundOrder:
		return actor.IsAdmin()

	case OpRequestExchange:
		return actor.IsCustomer() && order.CustomerID == actor.UserID

	case OpRequestRefund:
		if item == nil || item.OrderID != order.ID {
			return false
		}
		return actor.IsCustomer() && order.CustomerID == actor.UserID
	}
	return false
}

// sellsAll reports whether the seller owns the product of every item. An order
// without items is owned by nobody.
func sellsAll(order *models.Order, actor auth.Actor) bool {
	if len(order.Items) == 0 {
		return false
	}
	for _, item := range order.Items {
		if item.SellerID != actor.UserID {
			return false
		}
	}
	return true
}

func sellsAny(order *models.Order, actor auth.Actor) bool {
	for _, item := range order.Items {
		if item.SellerID == actor.UserID {
			return true
		}
	}
	return false
}
