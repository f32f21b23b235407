package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func TestGuardClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, 720*time.Hour, "stripe")
	require.NoError(t, err)

	claim, err := guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, claim)
	assert.Equal(t, defaultProcessingTTL, store.ttls["idempotency:stripe:evt_1"])

	claim, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimInFlight, claim)

	require.NoError(t, guard.Complete(ctx, "evt_1"))
	assert.Equal(t, 720*time.Hour, store.ttls["idempotency:stripe:evt_1"])

	claim, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimProcessed, claim)
}

func TestGuardReleaseAllowsRetry(t *testing.T) {
	ctx := context.Background()
	guard, err := NewIdempotencyGuard(newMemoryStore(), time.Hour, "stripe")
	require.NoError(t, err)

	claim, err := guard.Claim(ctx, "evt_2")
	require.NoError(t, err)
	require.Equal(t, ClaimAcquired, claim)
	require.NoError(t, guard.Release(ctx, "evt_2"))

	claim, err = guard.Claim(ctx, "evt_2")
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, claim)
}

func TestGuardShortTTLCapsProcessingMarker(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, time.Minute, "stripe")
	require.NoError(t, err)

	_, err = guard.Claim(context.Background(), "evt_3")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, store.ttls["idempotency:stripe:evt_3"])
}

func TestGuardErrors(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe")
	require.NoError(t, err)

	_, err = guard.Claim(ctx, "")
	require.Error(t, err)
	require.Error(t, guard.Complete(ctx, ""))
	require.Error(t, guard.Release(ctx, ""))

	store.err = errors.New("redis down")
	_, err = guard.Claim(ctx, "evt_4")
	require.ErrorContains(t, err, "redis down")
}

func TestNewIdempotencyGuardValidates(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Hour, "stripe")
	require.Error(t, err)
	_, err = NewIdempotencyGuard(newMemoryStore(), 0, "stripe")
	require.Error(t, err)
	_, err = NewIdempotencyGuard(newMemoryStore(), time.Hour, "")
	require.Error(t, err)
}
