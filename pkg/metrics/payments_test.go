package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)

	m.ObserveCall("refund", 100*time.Millisecond, nil)
	m.ObserveCall("refund", 200*time.Millisecond, errors.New("declined"))
	m.ObserveCall("refund", 50*time.Millisecond, errors.New("timeout"))
	m.IncRefundFailure("cancellation")

	ok, err := counterValue(reg, "marketplace_payment_gateway_calls_total", map[string]string{"operation": "refund", "outcome": OutcomeSuccess})
	require.NoError(t, err)
	assert.Equal(t, float64(1), ok)

	failed, err := counterValue(reg, "marketplace_payment_gateway_calls_total", map[string]string{"operation": "refund", "outcome": OutcomeFailure})
	require.NoError(t, err)
	assert.Equal(t, float64(2), failed)

	refunds, err := counterValue(reg, "marketplace_payment_refund_failures_total", map[string]string{"source": "cancellation"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), refunds)

	sum, err := histogramSum(reg, "marketplace_payment_gateway_call_duration_seconds", map[string]string{"operation": "refund"})
	require.NoError(t, err)
	assert.InDelta(t, 0.35, sum, 0.001)
}

func TestPaymentMetricsNilSafe(t *testing.T) {
	var m *PaymentMetrics
	m.ObserveCall("refund", time.Second, nil)
	m.IncRefundFailure("approval")
}
