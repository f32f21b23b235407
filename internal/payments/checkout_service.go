package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
)

// CheckoutConfig holds the redirect targets and currency for hosted checkout.
type CheckoutConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

// CheckoutService opens a gateway checkout for an unpaid order.
type CheckoutService interface {
	CreateSession(ctx context.Context, orderID, customerID uuid.UUID) (*CheckoutSession, error)
}

type checkoutService struct {
	repo    Repository
	gateway Gateway
	cfg     CheckoutConfig
	metrics *metrics.PaymentMetrics
	logg    *logger.Logger
}

func NewCheckoutService(repo Repository, gateway Gateway, cfg CheckoutConfig, m *metrics.PaymentMetrics, logg *logger.Logger) (CheckoutService, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &checkoutService{repo: repo, gateway: gateway, cfg: cfg, metrics: m, logg: logg}, nil
}

func (s *checkoutService) CreateSession(ctx context.Context, orderID, customerID uuid.UUID) (*CheckoutSession, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
	}
	if order.IsPaid() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already paid")
	}
	if order.Status != enums.OrderStatusPreparing {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "only preparing orders can be paid")
	}

	lines := make([]CheckoutLineItem, 0, len(order.Items))
	for _, item := range order.Items {
		if item.Status.IsTerminal() {
			continue
		}
		lines = append(lines, CheckoutLineItem{
			Name:            item.ProductName,
			UnitAmountMinor: ToMinorUnits(item.PriceAtPurchase),
			Quantity:        int64(item.Quantity),
		})
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order has no payable items")
	}

	user, err := s.repo.FindCustomer(ctx, customerID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}

	input := CheckoutSessionInput{
		OrderID:        order.ID,
		CustomerEmail:  user.Email,
		CustomerName:   user.Name,
		Currency:       s.cfg.Currency,
		LineItems:      lines,
		SuccessURL:     s.cfg.SuccessURL,
		CancelURL:      s.cfg.CancelURL,
		IdempotencyKey: "checkout-" + order.ID.String(),
	}
	if user.StripeCustomerID != nil {
		input.CustomerID = *user.StripeCustomerID
	}

	start := time.Now()
	session, err := s.gateway.CreateCheckoutSession(ctx, input)
	s.metrics.ObserveCall("checkout_session", time.Since(start), err)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayFailure, err, "create checkout session")
	}

	if err := s.repo.SaveCheckoutSession(ctx, order.ID, session.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store checkout session")
	}
	if session.CustomerID != "" && session.CustomerID != input.CustomerID {
		if err := s.repo.SaveStripeCustomer(ctx, user.ID, session.CustomerID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store stripe customer")
		}
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(logCtx, "checkout session created")
	return session, nil
}
