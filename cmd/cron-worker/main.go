package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-backend/internal/bootstrap"
	"github.com/angelmondragon/marketplace-backend/internal/cron"
	"github.com/angelmondragon/marketplace-backend/internal/inventory"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	"github.com/angelmondragon/marketplace-backend/internal/refunds"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/instance"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/stripe"
)

const retentionInterval = 24 * time.Hour

func main() {
	proc := bootstrap.MustStart("cron-worker")
	ctx, stop := proc.Context()
	defer stop()
	cfg, logg := proc.Config, proc.Logger

	dbClient, err := proc.Database(ctx)
	if err != nil {
		proc.Fatal(ctx, "failed to open database", err)
	}
	redisClient, err := proc.Redis(ctx)
	if err != nil {
		proc.Fatal(ctx, "failed to open redis", err)
	}

	registry, err := buildRegistry(ctx, cfg, logg, dbClient)
	if err != nil {
		proc.Fatal(ctx, "failed to build cron jobs", err)
	}
	// One lock per environment: only one worker in the fleet runs jobs.
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(proc.Name, envOrLocal(cfg.App.Env)), instance.GetID())
	if err != nil {
		proc.Fatal(ctx, "failed to create cron lock", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		proc.Fatal(ctx, "failed to create cron service", err)
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		proc.Fatal(ctx, "cron worker stopped unexpectedly", err)
	}
	proc.Shutdown(context.WithoutCancel(ctx))
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}

func buildRegistry(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	ordersRepo := orders.NewRepository(conn)
	outboxStore := outbox.NewStore(conn)
	outboxSvc := outbox.NewWriter(outboxStore, logg)
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap stripe: %w", err)
	}
	gateway, err := payments.NewStripeGateway(stripeClient)
	if err != nil {
		return nil, err
	}
	refunder, err := payments.NewBestEffortRefunder(gateway, paymentMetrics, logg)
	if err != nil {
		return nil, err
	}
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Tx:       dbClient,
		Outbox:   outboxSvc,
		Ledger:   inventory.NewLedger(),
		Gateway:  gateway,
		Refunder: refunder,
		Logger:   logg,
	})
	if err != nil {
		return nil, err
	}
	refundsSvc, err := refunds.NewService(refunds.ServiceParams{
		Repo:       ordersRepo,
		Tx:         dbClient,
		Outbox:     outboxSvc,
		Aggregates: ordersSvc,
		Gateway:    gateway,
		Metrics:    paymentMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}

	reconcile, err := cron.NewRefundReconcileJob(cron.RefundReconcileJobParams{
		Logger:      logg,
		Orders:      ordersRepo,
		Refunds:     refundsSvc,
		RetryGrace:  cfg.Refunds.RetryGrace,
		MaxAttempts: cfg.Refunds.MaxAttempts,
		BatchSize:   cfg.Refunds.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:              logg,
		DB:                  dbClient,
		Events:              outboxStore,
		DeadLetters:         outboxStore,
		EventRetention:      cfg.Outbox.Retention,
		DeadLetterRetention: cfg.Outbox.DLQRetention,
		TerminalAttempts:    cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	if err := registry.Register(reconcile, cfg.Refunds.ReconcileInterval); err != nil {
		return nil, err
	}
	if err := registry.Register(retention, retentionInterval); err != nil {
		return nil, err
	}
	return registry, nil
}
