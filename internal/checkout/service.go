package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/checkout/helpers"
	"github.com/angelmondragon/marketplace-backend/internal/inventory"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service converts a customer's cart into an order.
type Service interface {
	PlaceOrderFromCart(ctx context.Context, customerID uuid.UUID) (*models.Order, error)
}

type service struct {
	tx         txRunner
	repo       Repository
	ordersRepo orders.Repository
	ledger     inventory.Ledger
	outbox     outboxPublisher
	logg       *logger.Logger
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	repo Repository,
	ordersRepo orders.Repository,
	ledger inventory.Ledger,
	publisher outboxPublisher,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledger == nil {
		ledger = inventory.NewLedger()
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:         tx,
		repo:       repo,
		ordersRepo: ordersRepo,
		ledger:     ledger,
		outbox:     publisher,
		logg:       logg,
	}, nil
}

// PlaceOrderFromCart reserves stock for every cart line and persists the
// order in one transaction. Any failure rolls back every reservation.
func (s *service) PlaceOrderFromCart(ctx context.Context, customerID uuid.UUID) (*models.Order, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ordersRepo := s.ordersRepo.WithTx(tx)

		if _, err := repo.FindCustomer(ctx, customerID); err != nil {
			return lookupErr(err, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found"), "load customer")
		}
		address, err := repo.LatestAddress(ctx, customerID)
		if err != nil {
			return lookupErr(err, pkgerrors.New(pkgerrors.CodeAddressMissing, "customer has no shipping address"), "load address")
		}
		cart, err := repo.LoadCart(ctx, customerID)
		if err != nil {
			return lookupErr(err, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty"), "load cart")
		}
		if len(cart.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}

		lines, err := helpers.MergeCartLines(cart.Items)
		if err != nil {
			return err
		}

		order := &models.Order{
			CustomerID:      customerID,
			ShippingAddress: address.Snapshot(),
			Status:          enums.OrderStatusPreparing,
			TotalPrice:      decimal.Zero,
			Items:           make([]models.OrderItem, 0, len(lines)),
		}
		for _, line := range lines {
			reservation, err := s.ledger.Reserve(ctx, tx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			item := models.OrderItem{
				ProductID:       reservation.ProductID,
				SellerID:        reservation.SellerID,
				ProductName:     reservation.Name,
				Quantity:        reservation.Quantity,
				PriceAtPurchase: reservation.UnitPrice,
				Status:          enums.OrderItemStatusPreparing,
			}
			order.TotalPrice = order.TotalPrice.Add(item.Subtotal())
			order.Items = append(order.Items, item)
		}

		if err := ordersRepo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := repo.ClearCart(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		if err := s.emitOrderCreatedEvent(ctx, tx, order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, result.ID.String()), map[string]any{
		"customer_id": customerID.String(),
		"items":       len(result.Items),
		"total_price": result.TotalPrice.StringFixed(2),
	})
	s.logg.Info(logCtx, "order placed from cart")
	return result, nil
}

func (s *service) emitOrderCreatedEvent(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	items := make([]payloads.OrderCreatedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payloads.OrderCreatedItem{
			ItemID:          item.ID,
			ProductID:       item.ProductID,
			SellerID:        item.SellerID,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase,
		})
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.CustomerID, Role: string(enums.UserRoleCustomer)},
		Data: payloads.OrderCreatedEvent{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			TotalPrice: order.TotalPrice,
			Items:      items,
			Status:     order.Status,
			CreatedAt:  order.CreatedAt,
		},
		Version: 1,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order_created")
	}
	return nil
}

func lookupErr(err error, missing *pkgerrors.Error, op string) error {
	if db.IsNotFound(err) {
		return missing
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
