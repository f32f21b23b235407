package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const (
	EnvTest = "test"
	EnvLive = "live"

	defaultCurrency = "usd"
)

var (
	ErrAPIKeyRequired   = errors.New("stripe api key is required")
	ErrSecretRequired   = errors.New("stripe webhook secret is required")
	ErrUnknownEnv       = fmt.Errorf("stripe environment must be %q or %q", EnvTest, EnvLive)
	ErrLivemodeMismatch = errors.New("stripe event livemode does not match the configured environment")
)

// keyPrefixes lists the secret and restricted key prefixes each environment
// accepts; a live key in a test deployment is a configuration error.
var keyPrefixes = map[string][]string{
	EnvTest: {"sk_test_", "rk_test_"},
	EnvLive: {"sk_live_", "rk_live_"},
}

// Client bundles the Stripe API client with the settings every payment call
// and webhook verification needs.
type Client struct {
	api           *stripe.Client
	env           string
	webhookSecret string
	currency      string
	tolerance     time.Duration
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return nil, ErrUnknownEnv
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if !hasAnyPrefix(apiKey, prefixes) {
		return nil, fmt.Errorf("stripe %s environment needs a %s key", env, strings.Join(prefixes, " or "))
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, ErrSecretRequired
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	client := &Client{
		api:           stripe.NewClient(apiKey),
		env:           env,
		webhookSecret: secret,
		currency:      currency,
		tolerance:     webhook.DefaultTolerance,
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_env": env,
			"currency":   currency,
		}), "stripe client ready")
	}
	return client, nil
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(value, p) {
			return true
		}
	}
	return false
}

// API returns the typed Stripe client used by the payment gateway.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.env
}

// Currency is the lower-case ISO code charges and refunds are made in.
func (c *Client) Currency() string {
	if c == nil || c.currency == "" {
		return defaultCurrency
	}
	return c.currency
}

// VerifyEvent checks the Stripe-Signature header against the raw payload and
// decodes the event. Test-mode events are refused by a live deployment and
// the other way round.
func (c *Client) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	if c == nil || c.webhookSecret == "" {
		return stripe.Event{}, ErrSecretRequired
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, err
	}
	if event.Livemode != (c.env == EnvLive) {
		return stripe.Event{}, ErrLivemodeMismatch
	}
	return event, nil
}
