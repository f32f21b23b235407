package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

const refundFailureSource = "refund_approval"

var errNoPayment = errors.New("order has no captured payment")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type aggregateRecomputer interface {
	RecomputeAggregate(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.OrderStatus, error)
}

// Service runs the per-item refund workflow.
type Service interface {
	RequestRefund(ctx context.Context, orderID, itemID uuid.UUID, reason string, customerID uuid.UUID) (*models.OrderItem, error)
	ApproveRefundRequest(ctx context.Context, itemID, sellerID uuid.UUID) (*models.OrderItem, error)
	RejectRefundRequest(ctx context.Context, itemID uuid.UUID, reason string, sellerID uuid.UUID) (*models.OrderItem, error)
	ListSellerRefundRequests(ctx context.Context, sellerID uuid.UUID) ([]models.OrderItem, error)
	RetryApprovedRefund(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
}

// ServiceParams wires the refund service.
type ServiceParams struct {
	Repo       orders.Repository
	Tx         txRunner
	Outbox     outboxPublisher
	Aggregates aggregateRecomputer
	Gateway    payments.Gateway
	Metrics    *metrics.PaymentMetrics
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo       orders.Repository
	tx         txRunner
	outbox     outboxPublisher
	aggregates aggregateRecomputer
	gateway    payments.Gateway
	metrics    *metrics.PaymentMetrics
	logg       *logger.Logger
	now        func() time.Time
}

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
	if params.Aggregates == nil {
		return nil, fmt.Errorf("aggregate recomputer required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:       params.Repo,
		tx:         params.Tx,
		outbox:     params.Outbox,
		aggregates: params.Aggregates,
		gateway:    params.Gateway,
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        now,
	}, nil
}

func (s *service) RequestRefund(ctx context.Context, orderID, itemID uuid.UUID, reason string, customerID uuid.UUID) (*models.OrderItem, error) {
	actor := auth.NewActor(customerID, enums.UserRoleCustomer)
	reason = strings.TrimSpace(reason)

	var result *models.OrderItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, item, err := orders.LockItem(ctx, repo, itemID)
		if err != nil {
			return err
		}
		if order.ID != orderID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found in order")
		}
		if !orders.CanActOn(actor, orders.OpRequestRefund, order, item) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order not owned by customer")
		}
		if item.Status != enums.OrderItemStatusDelivered || item.RefundStatus != nil {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "only delivered items without a refund request can be refunded").
				WithDetails(map[string]any{"status": item.Status, "refund_status": item.RefundStatus})
		}
		if reason == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund reason required")
		}

		now := s.now()
		ok, err := repo.TransitionRefund(ctx, item.ID, nil, map[string]any{
			"refund_status":       enums.RefundStatusPendingApproval,
			"refund_reason":       reason,
			"refund_requested_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request refund")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "refund already requested")
		}
		pending := enums.RefundStatusPendingApproval
		item.RefundStatus = &pending
		item.RefundReason = &reason
		item.RefundRequestedAt = &now
		result = item

		return s.emit(ctx, tx, enums.EventRefundRequested, item.ID, actor, payloads.RefundEvent{
			OrderID:      order.ID,
			ItemID:       item.ID,
			RefundStatus: pending,
			AmountMinor:  payments.ToMinorUnits(item.Subtotal()),
			Reason:       reason,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logCtx(ctx, result), "refund requested")
	return result, nil
}

// ApproveRefundRequest commits the approval before calling the gateway. A
// gateway failure leaves the refund APPROVED for the reconcile job and is
// not returned to the caller.
func (s *service) ApproveRefundRequest(ctx context.Context, itemID, sellerID uuid.UUID) (*models.OrderItem, error) {
	actor := auth.NewActor(sellerID, enums.UserRoleSeller)

	var (
		order *models.Order
		item  *models.OrderItem
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		o, it, err := orders.LockItem(ctx, repo, itemID)
		if err != nil {
			return err
		}
		if !orders.CanActOn(actor, orders.OpDecideRefund, o, it) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "item not sold by seller")
		}
		if err := requirePending(it); err != nil {
			return err
		}
		// A pending request survives later fulfillment changes. Only a
		// terminal item can no longer be refunded.
		if it.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot refund item in status %s", it.Status))
		}

		now := s.now()
		pending := enums.RefundStatusPendingApproval
		ok, err := repo.TransitionRefund(ctx, it.ID, &pending, map[string]any{
			"refund_status":       enums.RefundStatusApproved,
			"refund_processed_at": now,
			"status":              enums.OrderItemStatusRefunded,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve refund")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "refund is no longer pending approval")
		}
		from := it.Status
		approved := enums.RefundStatusApproved
		it.RefundStatus = &approved
		it.RefundProcessedAt = &now
		it.Status = enums.OrderItemStatusRefunded

		if _, err := s.aggregates.RecomputeAggregate(ctx, tx, o.ID); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, enums.EventOrderItemStatusChanged, it.ID, actor, payloads.OrderItemStatusChangedEvent{
			OrderID:   o.ID,
			ItemID:    it.ID,
			ProductID: it.ProductID,
			From:      from,
			To:        it.Status,
		}); err != nil {
			return err
		}
		order, item = o, it
		return s.emit(ctx, tx, enums.EventRefundApproved, it.ID, actor, payloads.RefundEvent{
			OrderID:      o.ID,
			ItemID:       it.ID,
			RefundStatus: approved,
			AmountMinor:  payments.ToMinorUnits(it.Subtotal()),
		})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logCtx(ctx, item), "refund approved")

	return s.settle(ctx, order, item)
}

func (s *service) RejectRefundRequest(ctx context.Context, itemID uuid.UUID, reason string, sellerID uuid.UUID) (*models.OrderItem, error) {
	actor := auth.NewActor(sellerID, enums.UserRoleSeller)
	reason = strings.TrimSpace(reason)

	var result *models.OrderItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, item, err := orders.LockItem(ctx, repo, itemID)
		if err != nil {
			return err
		}
		if !orders.CanActOn(actor, orders.OpDecideRefund, order, item) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "item not sold by seller")
		}
		if err := requirePending(item); err != nil {
			return err
		}
		if reason == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
		}

		combined := reason
		if item.RefundReason != nil && *item.RefundReason != "" {
			combined = *item.RefundReason + " | rejected: " + reason
		}
		now := s.now()
		pending := enums.RefundStatusPendingApproval
		ok, err := repo.TransitionRefund(ctx, item.ID, &pending, map[string]any{
			"refund_status":       enums.RefundStatusRejected,
			"refund_reason":       combined,
			"refund_processed_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject refund")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "refund is no longer pending approval")
		}
		rejected := enums.RefundStatusRejected
		item.RefundStatus = &rejected
		item.RefundReason = &combined
		item.RefundProcessedAt = &now
		result = item

		return s.emit(ctx, tx, enums.EventRefundRejected, item.ID, actor, payloads.RefundEvent{
			OrderID:      order.ID,
			ItemID:       item.ID,
			RefundStatus: rejected,
			Reason:       reason,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logCtx(ctx, result), "refund rejected")
	return result, nil
}

func (s *service) ListSellerRefundRequests(ctx context.Context, sellerID uuid.UUID) ([]models.OrderItem, error) {
	items, err := s.repo.ListPendingRefunds(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refund requests")
	}
	return items, nil
}

// RetryApprovedRefund re-attempts the gateway call of an approved refund.
// The idempotency key is stable per item, so a refund the gateway already
// processed is returned instead of issued twice.
func (s *service) RetryApprovedRefund(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, notFoundOr(err, "order item")
	}
	if item.RefundStatus == nil || *item.RefundStatus != enums.RefundStatusApproved {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "refund is not awaiting settlement")
	}
	order, err := s.repo.FindOrder(ctx, item.OrderID)
	if err != nil {
		return nil, notFoundOr(err, "order")
	}
	return s.settle(ctx, order, item)
}

func (s *service) settle(ctx context.Context, order *models.Order, item *models.OrderItem) (*models.OrderItem, error) {
	amount := payments.ToMinorUnits(item.Subtotal())

	var (
		result *payments.RefundResult
		gwErr  error
	)
	if order.IsPaid() {
		reason := ""
		if item.RefundReason != nil {
			reason = *item.RefundReason
		}
		start := time.Now()
		result, gwErr = s.gateway.Refund(ctx, payments.RefundInput{
			PaymentIntentID: *order.PaymentIntentID,
			AmountMinor:     payments.Int64(amount),
			IdempotencyKey:  "refund-" + item.ID.String(),
			Reason:          reason,
			Metadata: map[string]string{
				"order_id": order.ID.String(),
				"item_id":  item.ID.String(),
			},
		})
		s.metrics.ObserveCall("refund", time.Since(start), gwErr)
	} else {
		gwErr = errNoPayment
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		approved := enums.RefundStatusApproved
		if gwErr == nil {
			ok, err := repo.TransitionRefund(ctx, item.ID, &approved, map[string]any{
				"refund_status":     enums.RefundStatusCompleted,
				"gateway_refund_id": result.ID,
				"refund_last_error": nil,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete refund")
			}
			if !ok {
				return nil
			}
			return s.emit(ctx, tx, enums.EventRefundCompleted, item.ID, auth.Actor{}, payloads.RefundEvent{
				OrderID:      order.ID,
				ItemID:       item.ID,
				RefundStatus: enums.RefundStatusCompleted,
				AmountMinor:  amount,
			})
		}

		ok, err := repo.TransitionRefund(ctx, item.ID, &approved, map[string]any{
			"refund_attempts":   gorm.Expr("refund_attempts + ?", 1),
			"refund_last_error": gwErr.Error(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund failure")
		}
		if !ok {
			return nil
		}
		return s.emit(ctx, tx, enums.EventRefundFailed, item.ID, auth.Actor{}, payloads.RefundEvent{
			OrderID:      order.ID,
			ItemID:       item.ID,
			RefundStatus: enums.RefundStatusApproved,
			AmountMinor:  amount,
			GatewayError: gwErr.Error(),
			Attempts:     item.RefundAttempts + 1,
		})
	})
	if err != nil {
		return nil, err
	}

	if gwErr != nil {
		s.metrics.IncRefundFailure(refundFailureSource)
		logCtx := s.logg.WithFields(s.logCtx(ctx, item), map[string]any{
			"amount_minor": amount,
			"attempt":      item.RefundAttempts + 1,
			"error":        gwErr.Error(),
		})
		s.logg.Warn(logCtx, "gateway refund failed; refund stays approved")
	} else {
		s.logg.Info(s.logCtx(ctx, item), "refund completed")
	}

	updated, err := s.repo.FindItem(ctx, item.ID)
	if err != nil {
		return nil, notFoundOr(err, "order item")
	}
	return updated, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, itemID uuid.UUID, actor auth.Actor, data any) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrderItem,
		AggregateID:   itemID,
		Data:          data,
		Version:       1,
	}
	if actor.Valid() {
		event.Actor = &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

func (s *service) logCtx(ctx context.Context, item *models.OrderItem) context.Context {
	return s.logg.WithItemID(s.logg.WithOrderID(ctx, item.OrderID.String()), item.ID.String())
}

func requirePending(item *models.OrderItem) error {
	if item.RefundStatus == nil || *item.RefundStatus != enums.RefundStatusPendingApproval {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "refund is not pending approval").
			WithDetails(map[string]any{"refund_status": item.RefundStatus})
	}
	return nil
}

func notFoundOr(err error, what string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}
