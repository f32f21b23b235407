package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

const metadataOrderID = "order_id"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	EmitOnce(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	OrdersRepo        orders.Repository
	TransactionRunner txRunner
	Outbox            outboxPublisher
	Logger            *logger.Logger
	Now               func() time.Time
}

// Service applies Stripe checkout events to orders.
type Service struct {
	ordersRepo orders.Repository
	txRunner   txRunner
	outbox     outboxPublisher
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.OrdersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		ordersRepo: params.OrdersRepo,
		txRunner:   params.TransactionRunner,
		outbox:     params.Outbox,
		logg:       params.Logger,
		now:        now,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
		}
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			logCtx := s.logg.WithFields(ctx, map[string]any{"session_id": session.ID, "payment_status": session.PaymentStatus})
			s.logg.Info(logCtx, "checkout session not paid yet")
			return nil
		}
		return s.PaymentConfirmed(ctx, &session)
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		logCtx := s.logg.WithFields(ctx, map[string]any{"event_type": event.Type, "session_id": event.GetObjectValue("id")})
		s.logg.Warn(logCtx, "checkout session did not complete")
		return nil
	default:
		return nil
	}
}

// PaymentConfirmed records the payment intent on the order referenced by the
// session. Re-delivery of the same confirmation changes nothing.
func (s *Service) PaymentConfirmed(ctx context.Context, session *stripe.CheckoutSession) error {
	orderID, err := orderIDFromSession(session)
	if err != nil {
		return err
	}
	intentID := ""
	if session.PaymentIntent != nil {
		intentID = session.PaymentIntent.ID
	}
	if intentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent missing from session")
	}
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
		"session_id":        session.ID,
		"payment_intent_id": intentID,
	})

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ordersRepo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if order.IsPaid() {
			if *order.PaymentIntentID != intentID {
				s.logg.Warn(s.logg.WithField(logCtx, "stored_payment_intent_id", *order.PaymentIntentID), "order already paid with a different payment intent")
			}
			return nil
		}

		paidAt := s.now()
		updates := map[string]any{
			"payment_intent_id": intentID,
			"paid_at":           paidAt,
		}
		if order.CheckoutSessionID == nil && session.ID != "" {
			updates["checkout_session_id"] = session.ID
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}

		err = s.outbox.EmitOnce(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPaidEvent{
				OrderID:         order.ID,
				PaymentIntentID: intentID,
				PaidAt:          paidAt,
			},
			Version: 1,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order_paid")
		}
		s.logg.Info(logCtx, "order payment confirmed")
		return nil
	})
}

func orderIDFromSession(session *stripe.CheckoutSession) (uuid.UUID, error) {
	if session == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session required")
	}
	raw := strings.TrimSpace(session.Metadata[metadataOrderID])
	if raw == "" {
		raw = strings.TrimSpace(session.ClientReferenceID)
	}
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id missing from session metadata")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id in session metadata")
	}
	return id, nil
}
