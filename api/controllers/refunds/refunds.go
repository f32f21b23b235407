package refunds

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	internalrefunds "github.com/angelmondragon/marketplace-backend/internal/refunds"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type reasonRequest struct {
	Reason string `json:"reason" validate:"notblank,max=1000"`
}

func (r *reasonRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

type refundListResponse struct {
	Items []models.OrderItem `json:"items"`
}

// Request opens a refund request on a delivered item.
func Request(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "refunds")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		orderID, err := c.ID("orderId")
		if err != nil {
			return 0, nil, err
		}
		itemID, err := c.ID("itemId")
		if err != nil {
			return 0, nil, err
		}
		var body reasonRequest
		if err := c.Bind(&body); err != nil {
			return 0, nil, err
		}
		item, err := svc.RequestRefund(c.Context(), orderID, itemID, body.Reason, c.Actor.UserID)
		return http.StatusCreated, item, err
	})
}

// ListPending returns the caller's refund requests awaiting a decision.
func ListPending(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "refunds")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		items, err := svc.ListSellerRefundRequests(c.Context(), c.Actor.UserID)
		if err != nil {
			return 0, nil, err
		}
		if items == nil {
			items = []models.OrderItem{}
		}
		return 0, refundListResponse{Items: items}, nil
	})
}

// Approve accepts a pending refund and settles it with the gateway.
func Approve(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "refunds")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		itemID, err := c.ID("itemId")
		if err != nil {
			return 0, nil, err
		}
		item, err := svc.ApproveRefundRequest(c.Context(), itemID, c.Actor.UserID)
		return 0, item, err
	})
}

// Reject declines a pending refund. The decision is final.
func Reject(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return controllers.Unavailable(logg, "refunds")
	}
	return controllers.Authenticated(logg, func(c controllers.Call) (int, any, error) {
		itemID, err := c.ID("itemId")
		if err != nil {
			return 0, nil, err
		}
		var body reasonRequest
		if err := c.Bind(&body); err != nil {
			return 0, nil, err
		}
		item, err := svc.RejectRefundRequest(c.Context(), itemID, body.Reason, c.Actor.UserID)
		return 0, item, err
	})
}
