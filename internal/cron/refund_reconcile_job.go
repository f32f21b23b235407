package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const (
	refundRetryGrace  = 10 * time.Minute
	refundMaxAttempts = 5
	refundBatchSize   = 100
)

type approvedRefundLister interface {
	ListApprovedRefunds(ctx context.Context, processedBefore time.Time, maxAttempts, limit int) ([]models.OrderItem, error)
}

type refundRetrier interface {
	RetryApprovedRefund(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
}

// RefundReconcileJobParams wire the job that settles approved refunds whose
// gateway call failed earlier.
type RefundReconcileJobParams struct {
	Logger      *logger.Logger
	Orders      approvedRefundLister
	Refunds     refundRetrier
	RetryGrace  time.Duration
	MaxAttempts int
	BatchSize   int
}

func NewRefundReconcileJob(params RefundReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refunds service required")
	}
	grace := params.RetryGrace
	if grace <= 0 {
		grace = refundRetryGrace
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = refundMaxAttempts
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = refundBatchSize
	}
	return &refundReconcileJob{
		logg:        params.Logger,
		orders:      params.Orders,
		refunds:     params.Refunds,
		grace:       grace,
		maxAttempts: maxAttempts,
		batch:       batch,
		now:         time.Now,
	}, nil
}

type refundReconcileJob struct {
	logg        *logger.Logger
	orders      approvedRefundLister
	refunds     refundRetrier
	grace       time.Duration
	maxAttempts int
	batch       int
	now         func() time.Time
}

func (j *refundReconcileJob) Name() string { return "refund-reconcile" }

func (j *refundReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	items, err := j.orders.ListApprovedRefunds(ctx, cutoff, j.maxAttempts, j.batch)
	if err != nil {
		return fmt.Errorf("list approved refunds: %w", err)
	}

	var errs error
	completed := 0
	pending := 0
	for i := range items {
		itemCtx := j.logg.WithItemID(ctx, items[i].ID.String())
		itemCtx = j.logg.WithOrderID(itemCtx, items[i].OrderID.String())
		updated, err := j.refunds.RetryApprovedRefund(itemCtx, items[i].ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("retry refund %s: %w", items[i].ID, err))
			continue
		}
		if updated != nil && updated.RefundStatus != nil && *updated.RefundStatus == enums.RefundStatusCompleted {
			completed++
			continue
		}
		pending++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(items),
		"completed":  completed,
		"pending":    pending,
		"failed":     len(multierr.Errors(errs)),
		"cutoff":     cutoff,
	})
	j.logg.Info(logCtx, "refund reconcile loop complete")
	return errs
}
