package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks calls made to the payment gateway.
type PaymentMetrics struct {
	calls          *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	refundFailures *prometheus.CounterVec
}

// NewPaymentMetrics registers the gateway metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payment",
		Name:      "gateway_calls_total",
		Help:      "Payment gateway calls by operation and outcome.",
	}, []string{"operation", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "payment",
		Name:      "gateway_call_duration_seconds",
		Help:      "Latency of payment gateway calls in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	refundFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payment",
		Name:      "refund_failures_total",
		Help:      "Refunds that failed and were left for reconciliation.",
	}, []string{"source"})
	reg.MustRegister(calls, latency, refundFailures)
	return &PaymentMetrics{
		calls:          calls,
		latency:        latency,
		refundFailures: refundFailures,
	}
}

// ObserveCall records one gateway call.
func (m *PaymentMetrics) ObserveCall(operation string, duration time.Duration, err error) {
	if m == nil || m.calls == nil {
		return
	}
	op := normalizeLabel(operation)
	m.calls.WithLabelValues(op, outcome(err)).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// IncRefundFailure counts a refund left in APPROVED for later reconciliation.
func (m *PaymentMetrics) IncRefundFailure(source string) {
	if m == nil || m.refundFailures == nil {
		return
	}
	m.refundFailures.WithLabelValues(normalizeLabel(source)).Inc()
}
