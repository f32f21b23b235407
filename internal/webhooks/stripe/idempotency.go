package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

// Claim is the outcome of trying to take ownership of a delivery.
type Claim int

const (
	// ClaimAcquired means this delivery should be applied.
	ClaimAcquired Claim = iota
	// ClaimProcessed means an earlier delivery was applied; acknowledge it.
	ClaimProcessed
	// ClaimInFlight means another delivery of the event is being applied.
	ClaimInFlight
)

const (
	markerProcessing = "processing"
	markerProcessed  = "processed"

	defaultProcessingTTL = 5 * time.Minute
)

// IdempotencyGuard tracks Stripe event ids in Redis. An event is claimed
// with a short-lived processing marker and promoted to processed once its
// effects committed, so a crash mid-apply lets Stripe's retry through.
type IdempotencyGuard struct {
	store         redis.IdempotencyStore
	scope         string
	ttl           time.Duration
	processingTTL time.Duration
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	processing := defaultProcessingTTL
	if ttl < processing {
		processing = ttl
	}
	return &IdempotencyGuard{store: store, scope: scope, ttl: ttl, processingTTL: processing}, nil
}

func (g *IdempotencyGuard) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}

// Claim tries to take eventID for processing.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (Claim, error) {
	key, err := g.key(eventID)
	if err != nil {
		return ClaimInFlight, err
	}
	ok, err := g.store.SetNX(ctx, key, markerProcessing, g.processingTTL)
	if err != nil {
		return ClaimInFlight, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	if ok {
		return ClaimAcquired, nil
	}

	marker, err := g.store.Get(ctx, key)
	switch {
	case redis.IsNil(err):
		// The processing marker expired between the two calls.
		return ClaimInFlight, nil
	case err != nil:
		return ClaimInFlight, fmt.Errorf("read event marker %s: %w", eventID, err)
	case marker == markerProcessed:
		return ClaimProcessed, nil
	default:
		return ClaimInFlight, nil
	}
}

// Complete records eventID as applied for the guard's full TTL.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, key, markerProcessed, g.ttl)
}

// Release drops the claim so the next delivery of eventID is applied.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}
