package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
)

// BestEffortRefunder issues refunds whose failure must never undo the local
// state change that triggered them. Failures are logged and counted so the
// money movement can be reconciled out of band.
type BestEffortRefunder struct {
	gateway Gateway
	metrics *metrics.PaymentMetrics
	logg    *logger.Logger
}

func NewBestEffortRefunder(gateway Gateway, m *metrics.PaymentMetrics, logg *logger.Logger) (*BestEffortRefunder, error) {
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &BestEffortRefunder{gateway: gateway, metrics: m, logg: logg}, nil
}

// RefundBestEffort calls the gateway and reports whether the refund went
// through. source labels the failure counter (e.g. "cancel_item").
func (r *BestEffortRefunder) RefundBestEffort(ctx context.Context, input RefundInput, source string) (*RefundResult, bool) {
	if input.PaymentIntentID == "" {
		r.logg.Warn(ctx, "refund skipped: order has no payment")
		return nil, false
	}

	start := time.Now()
	result, err := r.gateway.Refund(ctx, input)
	r.metrics.ObserveCall("refund", time.Since(start), err)
	if err != nil {
		r.metrics.IncRefundFailure(source)
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"payment_intent_id": input.PaymentIntentID,
			"idempotency_key":   input.IdempotencyKey,
			"refund_source":     source,
			"error":             err.Error(),
		})
		r.logg.Warn(logCtx, "gateway refund failed; left for reconciliation")
		return nil, false
	}
	return result, true
}
