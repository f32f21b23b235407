package stripewebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "webhook-test", Output: &bytes.Buffer{}})
	service, err := NewService(ServiceParams{
		OrdersRepo:        orders.NewRepository(conn),
		TransactionRunner: db.FromConn(conn),
		Outbox:            outbox.NewWriter(outbox.NewStore(conn), logg),
		Logger:            logg,
		Now:               func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return service, conn
}

func checkoutEvent(t *testing.T, eventType stripe.EventType, orderID uuid.UUID, intent string, status stripe.CheckoutSessionPaymentStatus) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":             "cs_test_1",
		"object":         "checkout.session",
		"payment_status": status,
		"payment_intent": intent,
		"metadata":       map[string]string{"order_id": orderID.String()},
	})
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{ID: "evt_" + uuid.NewString(), Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func seedOrder(t *testing.T, conn *gorm.DB) uuid.UUID {
	t.Helper()
	customer := dbtest.User(t, conn, enums.UserRoleCustomer)
	seller := dbtest.User(t, conn, enums.UserRoleSeller)
	product := dbtest.Product(t, conn, seller.ID, "10.00", 5)
	order := dbtest.Order(t, conn, customer.ID, enums.OrderStatusPreparing, dbtest.ItemSpec{Product: product, Quantity: 1})
	return order.ID
}

func TestService_CheckoutCompletedMarksOrderPaid(t *testing.T) {
	service, conn := newTestService(t)
	orderID := seedOrder(t, conn)

	event := checkoutEvent(t, stripe.EventTypeCheckoutSessionCompleted, orderID, "pi_123", stripe.CheckoutSessionPaymentStatusPaid)
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	order := dbtest.LoadOrder(t, conn, orderID)
	if !order.IsPaid() || *order.PaymentIntentID != "pi_123" {
		t.Fatalf("expected order paid with pi_123, got %v", order.PaymentIntentID)
	}
	if order.PaidAt == nil || !order.PaidAt.Equal(fixedNow) {
		t.Fatalf("expected paid_at %v, got %v", fixedNow, order.PaidAt)
	}
	if order.CheckoutSessionID == nil || *order.CheckoutSessionID != "cs_test_1" {
		t.Fatalf("expected checkout session recorded, got %v", order.CheckoutSessionID)
	}

	// redelivery under a new event id is still a no-op
	again := checkoutEvent(t, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded, orderID, "pi_123", stripe.CheckoutSessionPaymentStatusPaid)
	if err := service.HandleEvent(context.Background(), again); err != nil {
		t.Fatalf("handle redelivery: %v", err)
	}
	events := dbtest.Events(t, conn, orderID)
	if len(events) != 1 || events[0] != enums.EventOrderPaid {
		t.Fatalf("expected a single order_paid event, got %v", events)
	}
}

func TestService_DifferentIntentIsIgnored(t *testing.T) {
	service, conn := newTestService(t)
	orderID := seedOrder(t, conn)
	dbtest.MarkPaid(t, conn, orderID, "pi_first")

	event := checkoutEvent(t, stripe.EventTypeCheckoutSessionCompleted, orderID, "pi_second", stripe.CheckoutSessionPaymentStatusPaid)
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	order := dbtest.LoadOrder(t, conn, orderID)
	if *order.PaymentIntentID != "pi_first" {
		t.Fatalf("expected original intent kept, got %s", *order.PaymentIntentID)
	}
	if events := dbtest.Events(t, conn, orderID); len(events) != 0 {
		t.Fatalf("expected no events, got %v", events)
	}
}

func TestService_UnpaidSessionIsIgnored(t *testing.T) {
	service, conn := newTestService(t)
	orderID := seedOrder(t, conn)

	event := checkoutEvent(t, stripe.EventTypeCheckoutSessionCompleted, orderID, "pi_1", stripe.CheckoutSessionPaymentStatusUnpaid)
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if dbtest.LoadOrder(t, conn, orderID).IsPaid() {
		t.Fatal("expected order to stay unpaid")
	}
}

func TestService_InvalidSessions(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	missing := checkoutEvent(t, stripe.EventTypeCheckoutSessionCompleted, uuid.New(), "pi_1", stripe.CheckoutSessionPaymentStatusPaid)
	if err := service.HandleEvent(ctx, missing); !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	noIntent := checkoutEvent(t, stripe.EventTypeCheckoutSessionCompleted, uuid.New(), "", stripe.CheckoutSessionPaymentStatusPaid)
	if err := service.HandleEvent(ctx, noIntent); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	raw, _ := json.Marshal(map[string]any{"id": "cs_1", "payment_status": "paid", "payment_intent": "pi_1", "metadata": map[string]string{"order_id": "nope"}})
	bad := &stripe.Event{Type: stripe.EventTypeCheckoutSessionCompleted, Data: &stripe.EventData{Raw: raw}}
	if err := service.HandleEvent(ctx, bad); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := service.HandleEvent(ctx, &stripe.Event{Type: stripe.EventTypeCheckoutSessionCompleted}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing data, got %v", err)
	}
	if err := service.HandleEvent(ctx, &stripe.Event{Type: "customer.created", Data: &stripe.EventData{Raw: []byte(`{}`)}}); err != nil {
		t.Fatalf("expected unrelated events ignored, got %v", err)
	}
}
