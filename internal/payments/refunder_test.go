package payments

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
)

type fakeGateway struct {
	refunds   []RefundInput
	sessions  []CheckoutSessionInput
	refundErr error
	session   *CheckoutSession
	sessErr   error
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, input CheckoutSessionInput) (*CheckoutSession, error) {
	f.sessions = append(f.sessions, input)
	if f.sessErr != nil {
		return nil, f.sessErr
	}
	return f.session, nil
}

func (f *fakeGateway) Refund(_ context.Context, input RefundInput) (*RefundResult, error) {
	f.refunds = append(f.refunds, input)
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &RefundResult{ID: "re_" + input.IdempotencyKey, Status: "succeeded"}, nil
}

func TestBestEffortRefunderSwallowsFailures(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	reg := prometheus.NewRegistry()
	gateway := &fakeGateway{refundErr: errors.New("card_declined")}

	refunder, err := NewBestEffortRefunder(gateway, metrics.NewPaymentMetrics(reg), logg)
	require.NoError(t, err)

	result, ok := refunder.RefundBestEffort(context.Background(), RefundInput{
		PaymentIntentID: "pi_1",
		AmountMinor:     Int64(500),
		IdempotencyKey:  "cancel-1",
	}, "cancel_item")
	require.False(t, ok)
	require.Nil(t, result)
	require.Len(t, gateway.refunds, 1)
	require.True(t, strings.Contains(buf.String(), "left for reconciliation"))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var failures float64
	for _, mf := range mfs {
		if mf.GetName() == "marketplace_payment_refund_failures_total" {
			for _, m := range mf.GetMetric() {
				failures += m.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, float64(1), failures)
}

func TestBestEffortRefunderSuccessAndUnpaid(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}})
	gateway := &fakeGateway{}
	refunder, err := NewBestEffortRefunder(gateway, nil, logg)
	require.NoError(t, err)

	result, ok := refunder.RefundBestEffort(context.Background(), RefundInput{PaymentIntentID: "pi_1", IdempotencyKey: "k"}, "admin_cancel")
	require.True(t, ok)
	require.Equal(t, "re_k", result.ID)

	_, ok = refunder.RefundBestEffort(context.Background(), RefundInput{}, "admin_cancel")
	require.False(t, ok)
	require.Len(t, gateway.refunds, 1)
}

func TestNewBestEffortRefunderRequiresDeps(t *testing.T) {
	_, err := NewBestEffortRefunder(nil, nil, logger.New(logger.Options{}))
	require.Error(t, err)
	_, err = NewBestEffortRefunder(&fakeGateway{}, nil, nil)
	require.Error(t, err)
}
