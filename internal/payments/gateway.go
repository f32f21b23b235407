package payments

import (
	"context"

	"github.com/google/uuid"
)

// Gateway is the boundary to the external card processor.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, input CheckoutSessionInput) (*CheckoutSession, error)
	Refund(ctx context.Context, input RefundInput) (*RefundResult, error)
}

// CheckoutLineItem is one priced line on a hosted checkout page.
type CheckoutLineItem struct {
	Name            string
	UnitAmountMinor int64
	Quantity        int64
}

// CheckoutSessionInput carries what the gateway needs to open a hosted checkout.
type CheckoutSessionInput struct {
	OrderID        uuid.UUID
	CustomerID     string
	CustomerEmail  string
	CustomerName   string
	Currency       string
	LineItems      []CheckoutLineItem
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// CheckoutSession is the gateway's view of an opened checkout.
type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
	CustomerID      string
}

// RefundInput describes a refund against a captured payment. A nil
// AmountMinor refunds whatever remains on the payment.
type RefundInput struct {
	PaymentIntentID string
	AmountMinor     *int64
	IdempotencyKey  string
	Reason          string
	Metadata        map[string]string
}

// RefundResult is the gateway acknowledgement of a refund.
type RefundResult struct {
	ID          string
	Status      string
	AmountMinor int64
}
