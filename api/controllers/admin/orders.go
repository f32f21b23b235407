package admin

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	internalorders "github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// ListOrders pages through every order on the platform.
func ListOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "orders")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		page, err := c.Page()
		if err != nil {
			return 0, nil, err
		}
		list, err := svc.ListAllOrders(c.Context(), page)
		return 0, list, err
	})
}

// CancelOrder cancels every open item of an order and restores their stock.
func CancelOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "orders")
	}
	return orderAction(logg, svc.CancelOrderByAdmin)
}

// RefundOrder refunds the remaining payment and cancels the order.
func RefundOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "orders")
	}
	return orderAction(logg, svc.RefundOrderByAdmin)
}

type adminAction func(ctx context.Context, orderID, adminID uuid.UUID) (*models.Order, error)

func orderAction(logg *logger.Logger, act adminAction) http.HandlerFunc {
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		orderID, err := c.ID("orderId")
		if err != nil {
			return 0, nil, err
		}
		order, err := act(c.Context(), orderID, c.Actor.UserID)
		return 0, order, err
	})
}
