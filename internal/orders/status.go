package orders

import (
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// DeriveAggregate computes the order status from its item statuses. The first
// matching rule wins:
//
//  1. every item REFUNDED → REFUNDED
//  2. every item in a cancelled state → CANCELLED
//  3. over the items that are neither cancelled nor refunded: all DELIVERED →
//     DELIVERED, all SHIPPED or DELIVERED → SHIPPED, any PREPARING → PREPARING
//
// When nothing matches (for example SHIPPED next to EXCHANGED) prior is
// returned unchanged. The function is pure, so recomputing is always safe.
func DeriveAggregate(items []models.OrderItem, prior enums.OrderStatus) enums.OrderStatus {
	if len(items) == 0 {
		return prior
	}

	allRefunded, allCancelled := true, true
	for _, item := range items {
		if item.Status != enums.OrderItemStatusRefunded {
			allRefunded = false
		}
		if !item.Status.IsCancelled() {
			allCancelled = false
		}
	}
	if allRefunded {
		return enums.OrderStatusRefunded
	}
	if allCancelled {
		return enums.OrderStatusCancelled
	}

	active := 0
	allDelivered, allShipped, anyPreparing := true, true, false
	for _, item := range items {
		if item.Status.IsCancelled() || item.Status == enums.OrderItemStatusRefunded {
			continue
		}
		active++
		switch item.Status {
		case enums.OrderItemStatusDelivered:
		case enums.OrderItemStatusShipped:
			allDelivered = false
		case enums.OrderItemStatusPreparing:
			allDelivered, allShipped = false, false
			anyPreparing = true
		default:
			allDelivered, allShipped = false, false
		}
	}

	switch {
	case active == 0:
		return prior
	case allDelivered:
		return enums.OrderStatusDelivered
	case allShipped:
		return enums.OrderStatusShipped
	case anyPreparing:
		return enums.OrderStatusPreparing
	default:
		return prior
	}
}

var itemTransitions = map[enums.OrderItemStatus][]enums.OrderItemStatus{
	enums.OrderItemStatusPreparing: {
		enums.OrderItemStatusShipped,
		enums.OrderItemStatusDelivered,
		enums.OrderItemStatusCancelled,
		enums.OrderItemStatusCancelledBySeller,
		enums.OrderItemStatusCancelledByAdmin,
	},
	enums.OrderItemStatusShipped: {
		enums.OrderItemStatusDelivered,
		enums.OrderItemStatusCancelled,
		enums.OrderItemStatusCancelledBySeller,
		enums.OrderItemStatusCancelledByAdmin,
	},
	enums.OrderItemStatusDelivered: {
		enums.OrderItemStatusExchanged,
		enums.OrderItemStatusRefunded,
		enums.OrderItemStatusCancelled,
		enums.OrderItemStatusCancelledBySeller,
		enums.OrderItemStatusCancelledByAdmin,
	},
}

// CanTransition reports whether an item may move from one status to another.
// Terminal statuses have no outgoing edges.
func CanTransition(from, to enums.OrderItemStatus) bool {
	if from.IsTerminal() {
		return false
	}
	for _, candidate := range itemTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// itemStatusFor maps a seller-settable order status onto the item status every
// live item takes along with it.
func itemStatusFor(status enums.OrderStatus) (enums.OrderItemStatus, bool) {
	switch status {
	case enums.OrderStatusPreparing:
		return enums.OrderItemStatusPreparing, true
	case enums.OrderStatusShipped:
		return enums.OrderItemStatusShipped, true
	case enums.OrderStatusDelivered:
		return enums.OrderItemStatusDelivered, true
	}
	return "", false
}
