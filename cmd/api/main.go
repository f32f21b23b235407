package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	"github.com/angelmondragon/marketplace-backend/api/routes"
	"github.com/angelmondragon/marketplace-backend/internal/bootstrap"
	"github.com/angelmondragon/marketplace-backend/internal/checkout"
	"github.com/angelmondragon/marketplace-backend/internal/inventory"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	"github.com/angelmondragon/marketplace-backend/internal/refunds"
	stripewebhook "github.com/angelmondragon/marketplace-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
	"github.com/angelmondragon/marketplace-backend/pkg/stripe"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
	webhookScope      = "stripe"
)

func main() {
	proc := bootstrap.MustStart("api")
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
	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		proc.Fatal(ctx, "failed to bootstrap stripe", err)
	}
	params, err := buildRouterParams(cfg, logg, dbClient, redisClient, stripeClient)
	if err != nil {
		proc.Fatal(ctx, "failed to wire services", err)
	}

	// PORT is set by the hosting platform and wins over config.
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	ctx = logg.WithField(ctx, "addr", server.Addr)

	served := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		served <- server.ListenAndServe()
	}()

	select {
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			proc.Fatal(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}
	proc.Shutdown(context.WithoutCancel(ctx))
}

func buildRouterParams(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, stripeClient *stripe.Client) (routes.RouterParams, error) {
	conn := dbClient.DB()
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	gateway, err := payments.NewStripeGateway(stripeClient)
	if err != nil {
		return routes.RouterParams{}, err
	}
	refunder, err := payments.NewBestEffortRefunder(gateway, paymentMetrics, logg)
	if err != nil {
		return routes.RouterParams{}, err
	}

	outboxSvc := outbox.NewWriter(outbox.NewStore(conn), logg)
	ledger := inventory.NewLedger()
	ordersRepo := orders.NewRepository(conn)

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Tx:       dbClient,
		Outbox:   outboxSvc,
		Ledger:   ledger,
		Gateway:  gateway,
		Refunder: refunder,
		Logger:   logg,
	})
	if err != nil {
		return routes.RouterParams{}, err
	}

	checkoutSvc, err := checkout.NewService(dbClient, checkout.NewRepository(conn), ordersRepo, ledger, outboxSvc, logg)
	if err != nil {
		return routes.RouterParams{}, err
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
		return routes.RouterParams{}, err
	}

	sessions, err := payments.NewCheckoutService(payments.NewRepository(conn), gateway, payments.CheckoutConfig{
		Currency:   cfg.Stripe.Currency,
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
	}, paymentMetrics, logg)
	if err != nil {
		return routes.RouterParams{}, err
	}

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		OrdersRepo:        ordersRepo,
		TransactionRunner: dbClient,
		Outbox:            outboxSvc,
		Logger:            logg,
	})
	if err != nil {
		return routes.RouterParams{}, err
	}
	guard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, webhookScope)
	if err != nil {
		return routes.RouterParams{}, err
	}
	tokens, err := auth.NewTokens(cfg.JWT)
	if err != nil {
		return routes.RouterParams{}, err
	}

	return routes.RouterParams{
		Config: cfg,
		Logger: logg,
		Tokens: tokens,
		Health: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		Gatherer:        prometheus.DefaultGatherer,
		HTTPMetrics:     metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Idempotency:     redisClient,
		Checkout:        checkoutSvc,
		Orders:          ordersSvc,
		Refunds:         refundsSvc,
		CheckoutSession: sessions,
		StripeClient:    stripeClient,
		StripeWebhook:   webhookSvc,
		WebhookGuard:    guard,
	}, nil
}
