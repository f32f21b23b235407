package orders

import (
	"net/http"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	"github.com/angelmondragon/marketplace-backend/internal/checkout"
	internalorders "github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type statusChange struct {
	Status string `json:"status" validate:"required"`
}

type purchasedResponse struct {
	Purchased bool `json:"purchased"`
}

type checkoutSessionResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// PlaceOrder converts the caller's cart into a new order.
func PlaceOrder(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "checkout")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		order, err := svc.PlaceOrderFromCart(c.Context(), c.Actor.UserID)
		return http.StatusCreated, order, err
	})
}

// ListMine returns the caller's orders, newest first.
func ListMine(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "orders")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		page, err := c.Page()
		if err != nil {
			return 0, nil, err
		}
		list, err := svc.ListCustomerOrders(c.Context(), c.Actor.UserID, page)
		return 0, list, err
	})
}

// ListSeller returns orders holding at least one of the caller's items.
func ListSeller(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "orders")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		page, err := c.Page()
		if err != nil {
			return 0, nil, err
		}
		list, err := svc.ListSellerOrders(c.Context(), c.Actor.UserID, page)
		return 0, list, err
	})
}

// Detail returns one order when the caller may view it.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "orders")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		orderID, err := c.ID("orderId")
		if err != nil {
			return 0, nil, err
		}
		order, err := svc.GetOrder(c.Context(), orderID, c.Actor)
		return 0, order, err
	})
}

// HasPurchased reports whether a delivered order of the caller contains the
// product.
func HasPurchased(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "orders")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		productID, err := c.ID("productId")
		if err != nil {
			return 0, nil, err
		}
		ok, err := svc.HasPurchased(c.Context(), c.Actor.UserID, productID)
		if err != nil {
			return 0, nil, err
		}
		return 0, purchasedResponse{Purchased: ok}, nil
	})
}

// CheckoutSession opens a hosted payment session for an unpaid order.
func CheckoutSession(svc payments.CheckoutService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "checkout")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		orderID, err := c.ID("orderId")
		if err != nil {
			return 0, nil, err
		}
		session, err := svc.CreateSession(c.Context(), orderID, c.Actor.UserID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, checkoutSessionResponse{SessionID: session.ID, URL: session.URL}, nil
	})
}

// RequestExchange moves a delivered order into EXCHANGE_REQUESTED.
func RequestExchange(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "orders")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		orderID, err := c.ID("orderId")
		if err != nil {
			return 0, nil, err
		}
		order, err := svc.RequestExchange(c.Context(), orderID, c.Actor.UserID)
		return 0, order, err
	})
}

// ApproveExchange sends an exchange back to PREPARING.
func ApproveExchange(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "orders")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		orderID, err := c.ID("orderId")
		if err != nil {
			return 0, nil, err
		}
		order, err := svc.ApproveExchangeRequest(c.Context(), orderID, c.Actor.UserID)
		return 0, order, err
	})
}

// UpdateStatus applies an order-level status change for the seller who owns
// every item.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "orders")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		orderID, err := c.ID("orderId")
		if err != nil {
			return 0, nil, err
		}
		var body statusChange
		if err := c.Bind(&body); err != nil {
			return 0, nil, err
		}
		status, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			return 0, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status")
		}
		order, err := svc.UpdateOrderStatus(c.Context(), orderID, status, c.Actor.UserID)
		return 0, order, err
	})
}

// SetItemStatus moves one item through the item state machine.
func SetItemStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "orders")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		itemID, err := c.ID("itemId")
		if err != nil {
			return 0, nil, err
		}
		var body statusChange
		if err := c.Bind(&body); err != nil {
			return 0, nil, err
		}
		status, err := enums.ParseOrderItemStatus(body.Status)
		if err != nil {
			return 0, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item status")
		}
		item, err := svc.SetItemStatus(c.Context(), itemID, status, c.Actor)
		return 0, item, err
	})
}

// CancelItem cancels one item for its seller or an admin.
func CancelItem(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "orders")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		itemID, err := c.ID("itemId")
		if err != nil {
			return 0, nil, err
		}
		item, err := svc.CancelOrderItem(c.Context(), itemID, c.Actor)
		return 0, item, err
	})
}
