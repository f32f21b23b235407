package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/inventory"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

const (
	refundSourceCancelItem  = "cancel_item"
	refundSourceSetStatus   = "set_item_status"
	refundSourceAdminCancel = "admin_cancel_order"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// BestEffortRefunder issues refunds that must not block the cancellation
// that triggered them.
type BestEffortRefunder interface {
	RefundBestEffort(ctx context.Context, input payments.RefundInput, source string) (*payments.RefundResult, bool)
}

// Service drives the order and item state machine.
type Service interface {
	GetOrder(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error)
	ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListSellerOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListAllOrders(ctx context.Context, params pagination.Params) (*OrderList, error)
	HasPurchased(ctx context.Context, customerID, productID uuid.UUID) (bool, error)

	SetItemStatus(ctx context.Context, itemID uuid.UUID, status enums.OrderItemStatus, actor auth.Actor) (*models.OrderItem, error)
	CancelOrderItem(ctx context.Context, itemID uuid.UUID, actor auth.Actor) (*models.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, sellerID uuid.UUID) (*models.Order, error)
	CancelOrderByAdmin(ctx context.Context, orderID, adminID uuid.UUID) (*models.Order, error)
	RefundOrderByAdmin(ctx context.Context, orderID, adminID uuid.UUID) (*models.Order, error)
	RequestExchange(ctx context.Context, orderID, customerID uuid.UUID) (*models.Order, error)
	ApproveExchangeRequest(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Order, error)

	RecomputeAggregate(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.OrderStatus, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Ledger   inventory.Ledger
	Gateway  payments.Gateway
	Refunder BestEffortRefunder
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	ledger   inventory.Ledger
	gateway  payments.Gateway
	refunder BestEffortRefunder
	logg     *logger.Logger
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Refunder == nil {
		return nil, fmt.Errorf("refunder required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		ledger:   params.Ledger,
		gateway:  params.Gateway,
		refunder: params.Refunder,
		logg:     params.Logger,
	}, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order")
	}
	if !CanActOn(actor, OpView, order, nil) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order not accessible")
	}
	return order, nil
}

func (s *service) ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	list, err := s.repo.ListCustomerOrders(ctx, customerID, params)
	return list, listErr(err)
}

func (s *service) ListSellerOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	list, err := s.repo.ListSellerOrders(ctx, sellerID, params)
	return list, listErr(err)
}

func (s *service) ListAllOrders(ctx context.Context, params pagination.Params) (*OrderList, error) {
	list, err := s.repo.ListOrders(ctx, params)
	return list, listErr(err)
}

func (s *service) HasPurchased(ctx context.Context, customerID, productID uuid.UUID) (bool, error) {
	ok, err := s.repo.HasDeliveredPurchase(ctx, customerID, productID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check purchase")
	}
	return ok, nil
}

func (s *service) SetItemStatus(ctx context.Context, itemID uuid.UUID, status enums.OrderItemStatus, actor auth.Actor) (*models.OrderItem, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown item status")
	}
	if status == enums.OrderItemStatusRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "items are refunded through the refund workflow")
	}

	var (
		order     *models.Order
		item      *models.OrderItem
		cancelled bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		o, it, err := lockItem(ctx, repo, itemID)
		if err != nil {
			return err
		}
		if !CanActOn(actor, OpSetItemStatus, o, it) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "item not owned by actor")
		}
		if status == enums.OrderItemStatusCancelledByAdmin && !actor.IsAdmin() {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only admins may set CANCELLED_BY_ADMIN")
		}
		order, item = o, it
		if it.Status == status && !it.Status.IsTerminal() {
			return nil
		}
		if !CanTransition(it.Status, status) {
			return invalidTransition(it.Status, status)
		}
		if status.IsCancelled() {
			if err := s.ledger.Release(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return err
			}
			cancelled = true
		}
		if err := s.moveItem(ctx, tx, repo, o, it, status, actor); err != nil {
			return err
		}
		_, err = s.recompute(ctx, tx, repo, o, &actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	if cancelled {
		s.refundItems(ctx, order, []models.OrderItem{*item}, "cancel-"+item.ID.String(), refundSourceSetStatus)
	}
	return item, nil
}

func (s *service) CancelOrderItem(ctx context.Context, itemID uuid.UUID, actor auth.Actor) (*models.OrderItem, error) {
	if !actor.IsSeller() && !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only sellers and admins may cancel items")
	}
	target := enums.OrderItemStatusCancelledBySeller
	if actor.IsAdmin() {
		target = enums.OrderItemStatusCancelledByAdmin
	}

	var (
		order *models.Order
		item  *models.OrderItem
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		o, it, err := lockItem(ctx, repo, itemID)
		if err != nil {
			return err
		}
		if !CanActOn(actor, OpCancelItem, o, it) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "item not owned by actor")
		}
		if it.Status == enums.OrderItemStatusDelivered || it.Status.IsTerminal() {
			return invalidTransition(it.Status, target)
		}
		if err := s.ledger.Release(ctx, tx, it.ProductID, it.Quantity); err != nil {
			return err
		}
		if err := s.moveItem(ctx, tx, repo, o, it, target, actor); err != nil {
			return err
		}
		if _, err := s.recompute(ctx, tx, repo, o, &actor); err != nil {
			return err
		}
		order, item = o, it
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.refundItems(ctx, order, []models.OrderItem{*item}, "cancel-"+item.ID.String(), refundSourceCancelItem)
	return item, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, sellerID uuid.UUID) (*models.Order, error) {
	target, ok := itemStatusFor(status)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "sellers may only set PREPARING, SHIPPED or DELIVERED").
			WithDetails(map[string]any{"to": status})
	}
	actor := auth.NewActor(sellerID, enums.UserRoleSeller)

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "order")
		}
		if !CanActOn(actor, OpUpdateOrderStatus, order, nil) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "seller does not own every item in the order")
		}
		if order.Status.IsClosed() {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order is closed").
				WithDetails(map[string]any{"from": order.Status, "to": status})
		}
		// Items only follow the order forward; one already past target keeps
		// its status.
		for i := range order.Items {
			it := &order.Items[i]
			if it.Status == target || !CanTransition(it.Status, target) {
				continue
			}
			if err := s.moveItem(ctx, tx, repo, order, it, target, actor); err != nil {
				return err
			}
		}
		if order.Status != status {
			if err := s.setOrderStatus(ctx, tx, repo, order, status, &actor, "seller_update"); err != nil {
				return err
			}
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelOrderByAdmin is an administrative override: stock comes back for
// every item that was not already cancelled, whatever its status.
func (s *service) CancelOrderByAdmin(ctx context.Context, orderID, adminID uuid.UUID) (*models.Order, error) {
	actor := auth.NewActor(adminID, enums.UserRoleAdmin)

	var (
		result    *models.Order
		cancelled []models.OrderItem
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "order")
		}
		if !CanActOn(actor, OpCancelOrder, order, nil) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
		}
		result = order
		if order.Status == enums.OrderStatusCancelled {
			return nil
		}

		for i := range order.Items {
			it := &order.Items[i]
			if !it.Status.IsCancelled() {
				if err := s.ledger.Release(ctx, tx, it.ProductID, it.Quantity); err != nil {
					return err
				}
			}
			if it.Status.IsTerminal() {
				continue
			}
			if err := s.moveItem(ctx, tx, repo, order, it, enums.OrderItemStatusCancelledByAdmin, actor); err != nil {
				return err
			}
			cancelled = append(cancelled, *it)
		}
		if err := s.setOrderStatus(ctx, tx, repo, order, enums.OrderStatusCancelled, &actor, "admin_cancel"); err != nil {
			return err
		}
		return s.emitCancelled(ctx, tx, order, cancelled, order.IsPaid() && len(cancelled) > 0, nil, actor)
	})
	if err != nil {
		return nil, err
	}

	if len(cancelled) > 0 {
		s.refundItems(ctx, result, cancelled, "admin-cancel-"+result.ID.String(), refundSourceAdminCancel)
	}
	return result, nil
}

// RefundOrderByAdmin refunds the live items through the gateway first and
// only then cancels them locally; a gateway failure leaves the order as is.
// The gateway call runs outside the order lock, so the locked pass checks
// the refunded set again and reports items that were settled in between.
func (s *service) RefundOrderByAdmin(ctx context.Context, orderID, adminID uuid.UUID) (*models.Order, error) {
	actor := auth.NewActor(adminID, enums.UserRoleAdmin)

	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order")
	}
	if !CanActOn(actor, OpRefundOrder, order, nil) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if order.Status.IsClosed() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order is closed")
	}
	if !order.IsPaid() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order has not been paid")
	}

	covered := make(map[uuid.UUID]bool, len(order.Items))
	amount := decimal.Zero
	for _, it := range order.Items {
		if !it.Status.IsTerminal() {
			covered[it.ID] = true
			amount = amount.Add(it.Subtotal())
		}
	}
	if amount.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order has no refundable items")
	}

	refund, err := s.gateway.Refund(ctx, payments.RefundInput{
		PaymentIntentID: *order.PaymentIntentID,
		AmountMinor:     payments.Int64(payments.ToMinorUnits(amount)),
		IdempotencyKey:  "admin-refund-" + order.ID.String(),
		Metadata:        map[string]string{"order_id": order.ID.String()},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayFailure, err, "refund order")
	}

	var (
		result    *models.Order
		settled   []models.OrderItem
		uncovered []models.OrderItem
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "order")
		}
		settled, uncovered = nil, nil
		var cancelled []models.OrderItem
		for i := range locked.Items {
			it := &locked.Items[i]
			if it.Status.IsTerminal() {
				if covered[it.ID] {
					settled = append(settled, *it)
				}
				continue
			}
			if err := s.ledger.Release(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return err
			}
			if err := s.moveItem(ctx, tx, repo, locked, it, enums.OrderItemStatusCancelledByAdmin, actor); err != nil {
				return err
			}
			if !covered[it.ID] {
				uncovered = append(uncovered, *it)
			}
			cancelled = append(cancelled, *it)
		}
		if locked.Status != enums.OrderStatusCancelled {
			if err := s.setOrderStatus(ctx, tx, repo, locked, enums.OrderStatusCancelled, &actor, "admin_refund"); err != nil {
				return err
			}
		}
		result = locked
		return s.emitCancelled(ctx, tx, locked, cancelled, true, itemIDs(settled), actor)
	})
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{"refund_id": refund.ID})
	if err != nil {
		// The money already moved; surface the local failure loudly.
		s.logg.Error(logCtx, "order refunded at gateway but local cancellation failed", err)
		return nil, err
	}

	if len(settled) > 0 {
		over := decimal.Zero
		for _, it := range settled {
			over = over.Add(it.Subtotal())
		}
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"settled_items": itemIDs(settled),
			"over_refunded": payments.ToMinorUnits(over),
		}), "order refund covered items settled by a concurrent request")
	}
	if len(uncovered) > 0 {
		s.refundItems(ctx, result, uncovered, "admin-refund-rest-"+result.ID.String(), refundSourceAdminCancel)
	}
	return result, nil
}

func (s *service) RequestExchange(ctx context.Context, orderID, customerID uuid.UUID) (*models.Order, error) {
	actor := auth.NewActor(customerID, enums.UserRoleCustomer)
	return s.exchangeStep(ctx, orderID, actor, OpRequestExchange,
		enums.OrderStatusDelivered, enums.OrderStatusExchangeRequested, enums.EventExchangeRequested)
}

func (s *service) ApproveExchangeRequest(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Order, error) {
	actor := auth.NewActor(sellerID, enums.UserRoleSeller)
	return s.exchangeStep(ctx, orderID, actor, OpApproveExchange,
		enums.OrderStatusExchangeRequested, enums.OrderStatusPreparing, enums.EventExchangeApproved)
}

func (s *service) exchangeStep(
	ctx context.Context,
	orderID uuid.UUID,
	actor auth.Actor,
	op Operation,
	from, to enums.OrderStatus,
	eventType enums.OutboxEventType,
) (*models.Order, error) {
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "order")
		}
		if !CanActOn(actor, op, order, nil) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order not accessible")
		}
		if order.Status != from {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("order must be %s", from)).
				WithDetails(map[string]any{"from": order.Status, "to": to})
		}
		if err := s.setOrderStatus(ctx, tx, repo, order, to, &actor, string(eventType)); err != nil {
			return err
		}
		result = order
		return s.emit(ctx, tx, eventType, enums.AggregateOrder, order.ID, &actor, payloads.ExchangeEvent{
			OrderID: order.ID,
			ActorID: actor.UserID,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecomputeAggregate re-derives the order status from the persisted items.
// It runs in the caller's transaction and is safe to repeat.
func (s *service) RecomputeAggregate(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.OrderStatus, error) {
	if tx == nil {
		return "", fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.FindOrderForUpdate(ctx, orderID)
	if err != nil {
		return "", notFoundOr(err, "order")
	}
	return s.recompute(ctx, tx, repo, order, nil)
}

func (s *service) recompute(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, actor *auth.Actor) (enums.OrderStatus, error) {
	next := DeriveAggregate(order.Items, order.Status)
	if next == order.Status {
		return next, nil
	}
	if err := s.setOrderStatus(ctx, tx, repo, order, next, actor, "recomputed"); err != nil {
		return "", err
	}
	return next, nil
}

func (s *service) setOrderStatus(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, to enums.OrderStatus, actor *auth.Actor, reason string) error {
	from := order.Status
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"status": to}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	order.Status = to

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{"from": from, "to": to, "reason": reason})
	s.logg.Info(logCtx, "order status changed")

	return s.emit(ctx, tx, enums.EventOrderStatusChanged, enums.AggregateOrder, order.ID, actor, payloads.OrderStatusChangedEvent{
		OrderID: order.ID,
		From:    from,
		To:      to,
		Reason:  reason,
	})
}

// moveItem persists an item transition and mirrors it onto item, which must
// point into order.Items so a following recompute sees the new status.
func (s *service) moveItem(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, item *models.OrderItem, to enums.OrderItemStatus, actor auth.Actor) error {
	from := item.Status
	ok, err := repo.TransitionItem(ctx, item.ID, from, to)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update item status")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "item changed concurrently")
	}
	item.Status = to

	restocked := 0
	if to.IsCancelled() {
		restocked = item.Quantity
	}
	logCtx := s.logg.WithFields(s.logg.WithItemID(s.logg.WithOrderID(ctx, order.ID.String()), item.ID.String()), map[string]any{
		"from":       from,
		"to":         to,
		"actor_id":   actor.UserID.String(),
		"actor_role": actor.Role,
	})
	s.logg.Info(logCtx, "order item status changed")

	return s.emit(ctx, tx, enums.EventOrderItemStatusChanged, enums.AggregateOrderItem, item.ID, &actor, payloads.OrderItemStatusChangedEvent{
		OrderID:   order.ID,
		ItemID:    item.ID,
		ProductID: item.ProductID,
		From:      from,
		To:        to,
		Restocked: restocked,
	})
}

func (s *service) emitCancelled(ctx context.Context, tx *gorm.DB, order *models.Order, cancelled []models.OrderItem, refunded bool, settled []uuid.UUID, actor auth.Actor) error {
	return s.emit(ctx, tx, enums.EventOrderCancelled, enums.AggregateOrder, order.ID, &actor, payloads.OrderCancelledEvent{
		OrderID:          order.ID,
		CancelledItems:   itemIDs(cancelled),
		Refunded:         refunded,
		SettledElsewhere: settled,
	})
}

func itemIDs(items []models.OrderItem) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, aggregateID uuid.UUID, actor *auth.Actor, data any) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		Data:          data,
		Version:       1,
	}
	if actor != nil {
		event.Actor = &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

// refundItems returns the value of items that were cancelled after payment.
// It runs after commit and never fails the caller.
func (s *service) refundItems(ctx context.Context, order *models.Order, items []models.OrderItem, key, source string) {
	if order == nil || !order.IsPaid() || len(items) == 0 {
		return
	}
	amount := decimal.Zero
	for _, it := range items {
		amount = amount.Add(it.Subtotal())
	}
	if amount.IsZero() {
		return
	}
	s.refunder.RefundBestEffort(s.logg.WithOrderID(ctx, order.ID.String()), payments.RefundInput{
		PaymentIntentID: *order.PaymentIntentID,
		AmountMinor:     payments.Int64(payments.ToMinorUnits(amount)),
		IdempotencyKey:  key,
		Metadata:        map[string]string{"order_id": order.ID.String()},
	}, source)
}

// lockItem loads an item, locks its order and returns a pointer into
// order.Items for the same item.
func lockItem(ctx context.Context, repo Repository, itemID uuid.UUID) (*models.Order, *models.OrderItem, error) {
	item, err := repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, nil, notFoundOr(err, "order item")
	}
	order, err := repo.FindOrderForUpdate(ctx, item.OrderID)
	if err != nil {
		return nil, nil, notFoundOr(err, "order")
	}
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			return order, &order.Items[i], nil
		}
	}
	return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
}

// LockItem is lockItem for collaborators that mutate items inside their own
// transaction, such as the refund workflow.
func LockItem(ctx context.Context, repo Repository, itemID uuid.UUID) (*models.Order, *models.OrderItem, error) {
	return lockItem(ctx, repo, itemID)
}

func invalidTransition(from, to enums.OrderItemStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot move item from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func notFoundOr(err error, what string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}

func listErr(err error) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
}
