package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	checkoutsession "github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/refund"

	pkgstripe "github.com/angelmondragon/marketplace-backend/pkg/stripe"
)

const metadataOrderID = "order_id"

// stripeAPI is the subset of stripe-go the gateway calls. Tests replace it.
type stripeAPI interface {
	NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error)
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	NewRefund(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeResources struct{}

func (stripeResources) NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return customer.New(params)
}

func (stripeResources) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return checkoutsession.New(params)
}

func (stripeResources) NewRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	return refund.New(params)
}

// StripeGateway implements Gateway on top of Stripe Checkout and Refunds.
type StripeGateway struct {
	api      stripeAPI
	currency string
}

// NewStripeGateway builds the gateway; client must already be initialized so
// the global API key is set.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &StripeGateway{api: stripeResources{}, currency: client.Currency()}, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, input CheckoutSessionInput) (*CheckoutSession, error) {
	if len(input.LineItems) == 0 {
		return nil, fmt.Errorf("checkout requires at least one line item")
	}

	customerID := input.CustomerID
	if customerID == "" {
		params := &stripe.CustomerParams{
			Email: stripe.String(input.CustomerEmail),
			Name:  stripe.String(input.CustomerName),
		}
		params.Context = ctx
		created, err := g.api.NewCustomer(params)
		if err != nil {
			return nil, fmt.Errorf("create stripe customer: %w", err)
		}
		customerID = created.ID
	}

	currency := strings.ToLower(input.Currency)
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(input.OrderID.String()),
		SuccessURL:        stripe.String(input.SuccessURL),
		CancelURL:         stripe.String(input.CancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{metadataOrderID: input.OrderID.String()},
		},
	}
	for _, line := range input.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(line.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(line.UnitAmountMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
			},
		})
	}
	params.AddMetadata(metadataOrderID, input.OrderID.String())
	params.Context = ctx
	if input.IdempotencyKey != "" {
		params.SetIdempotencyKey(input.IdempotencyKey)
	}

	sess, err := g.api.NewCheckoutSession(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	out := &CheckoutSession{ID: sess.ID, URL: sess.URL, CustomerID: customerID}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}
	return out, nil
}

func (g *StripeGateway) Refund(ctx context.Context, input RefundInput) (*RefundResult, error) {
	if input.PaymentIntentID == "" {
		return nil, fmt.Errorf("payment intent id required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(input.PaymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if input.AmountMinor != nil {
		params.Amount = stripe.Int64(*input.AmountMinor)
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	if input.Reason != "" {
		params.AddMetadata("reason", input.Reason)
	}
	params.Context = ctx
	if input.IdempotencyKey != "" {
		params.SetIdempotencyKey(input.IdempotencyKey)
	}

	ref, err := g.api.NewRefund(params)
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}
	return &RefundResult{ID: ref.ID, Status: string(ref.Status), AmountMinor: ref.Amount}, nil
}
