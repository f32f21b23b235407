package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	admincontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/admin"
	ordercontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/orders"
	refundcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/refunds"
	webhookcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/webhooks"
	"github.com/angelmondragon/marketplace-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/marketplace-backend/internal/checkout"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	"github.com/angelmondragon/marketplace-backend/internal/refunds"
	stripewebhook "github.com/angelmondragon/marketplace-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
	"github.com/angelmondragon/marketplace-backend/pkg/stripe"
)

// RouterParams carries everything the HTTP surface is built from.
type RouterParams struct {
	Config *config.Config
	Logger *logger.Logger
	Tokens *auth.Tokens

	// Readiness dependencies keyed by name; nil entries are skipped.
	Health map[string]controllers.Pinger
	// Gatherer backs /metrics; nil falls back to the default registry.
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics

	Idempotency redis.IdempotencyStore

	Checkout        checkoutsvc.Service
	Orders          orders.Service
	Refunds         refunds.Service
	CheckoutSession payments.CheckoutService

	StripeClient  *stripe.Client
	StripeWebhook *stripewebhook.Service
	WebhookGuard  *stripewebhook.IdempotencyGuard
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Health))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if p.StripeWebhook != nil && p.StripeClient != nil && p.WebhookGuard != nil {
		r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhook, p.StripeClient, p.WebhookGuard, logg))
	}

	idem := middleware.NewIdempotency(p.Idempotency, logg)
	// Mutations that create orders or move money keep their keys longest.
	retryable := idem.Require(cfg.Eventing.HTTPIdempotencyTTL)
	payment := idem.Require(middleware.PaymentIdempotencyTTL)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(p.Tokens, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderId}", ordercontrollers.Detail(p.Orders, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.UserRoleCustomer))
				r.Get("/", ordercontrollers.ListMine(p.Orders, logg))
				r.Get("/purchased/{productId}", ordercontrollers.HasPurchased(p.Orders, logg))
				r.With(payment).Post("/", ordercontrollers.PlaceOrder(p.Checkout, logg))
				r.With(payment).Post("/{orderId}/checkout-session", ordercontrollers.CheckoutSession(p.CheckoutSession, logg))
				r.With(retryable).Post("/{orderId}/exchange", ordercontrollers.RequestExchange(p.Orders, logg))
				r.With(retryable).Post("/{orderId}/items/{itemId}/refund", refundcontrollers.Request(p.Refunds, logg))
			})
		})

		r.Route("/seller", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleSeller))
			r.Get("/orders", ordercontrollers.ListSeller(p.Orders, logg))
			r.Patch("/orders/{orderId}/status", ordercontrollers.UpdateStatus(p.Orders, logg))
			r.Patch("/items/{itemId}/status", ordercontrollers.SetItemStatus(p.Orders, logg))
			r.Get("/refunds", refundcontrollers.ListPending(p.Refunds, logg))
			r.With(retryable).Post("/orders/{orderId}/exchange/approve", ordercontrollers.ApproveExchange(p.Orders, logg))
			r.With(retryable).Post("/items/{itemId}/cancel", ordercontrollers.CancelItem(p.Orders, logg))
			r.With(payment).Post("/refunds/{itemId}/approve", refundcontrollers.Approve(p.Refunds, logg))
			r.With(retryable).Post("/refunds/{itemId}/reject", refundcontrollers.Reject(p.Refunds, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Get("/orders", admincontrollers.ListOrders(p.Orders, logg))
			r.With(payment).Post("/orders/{orderId}/cancel", admincontrollers.CancelOrder(p.Orders, logg))
			r.With(payment).Post("/orders/{orderId}/refund", admincontrollers.RefundOrder(p.Orders, logg))
			r.With(retryable).Post("/items/{itemId}/cancel", ordercontrollers.CancelItem(p.Orders, logg))
		})
	})

	return r
}
