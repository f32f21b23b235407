package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/registry"
)

type buried struct {
	id     uuid.UUID
	reason enums.DeadLetterReason
	cause  error
}

type fakeStore struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	buried    []buried
	buryErr   error
}

func (f *fakeStore) Claim(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func (f *fakeStore) MarkPublished(_ *gorm.DB, id uuid.UUID, _ time.Time) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeStore) RecordFailure(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeStore) Bury(_ *gorm.DB, row models.OutboxEvent, reason enums.DeadLetterReason, cause error, _ time.Time, _ int) error {
	if f.buryErr != nil {
		return f.buryErr
	}
	f.buried = append(f.buried, buried{id: row.ID, reason: reason, cause: cause})
	return nil
}

type sent struct {
	topic string
	msg   *gcppubsub.Message
}

// fakeSink answers each Send with the next queued error; an empty queue
// means success.
type fakeSink struct {
	errs []error
	sent []sent
}

func (f *fakeSink) Send(_ context.Context, topic string, msg *gcppubsub.Message) error {
	f.sent = append(f.sent, sent{topic: topic, msg: msg})
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type fakeDB struct{ pingErr error }

func (f fakeDB) Ping(context.Context) error { return f.pingErr }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type relayFixture struct {
	relay *Relay
	store *fakeStore
	sink  *fakeSink
	reg   *prometheus.Registry
}

func newRelayFixture(t *testing.T, cfg config.OutboxConfig, rows ...models.OutboxEvent) *relayFixture {
	t.Helper()
	routes, err := registry.New(config.PubSubConfig{OrdersTopic: "orders-topic"})
	require.NoError(t, err)
	f := &relayFixture{
		store: &fakeStore{rows: rows},
		sink:  &fakeSink{},
		reg:   prometheus.NewRegistry(),
	}
	f.relay, err = NewRelay(RelayParams{
		Config:   cfg,
		Logger:   logger.New(logger.Options{ServiceName: "relay-test", Output: io.Discard}),
		DB:       fakeDB{},
		Broker:   fakeDB{},
		Store:    f.store,
		Registry: routes,
		Sink:     f.sink,
		Metrics:  metrics.NewOutboxMetrics(f.reg),
	})
	require.NoError(t, err)
	return f
}

func orderRow(t *testing.T, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	t.Helper()
	orderID := uuid.New()
	row, _, err := outbox.Seal(outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          payloads.OrderPaidEvent{OrderID: orderID, PaymentIntentID: "pi_123"},
	}, time.Now().UTC())
	require.NoError(t, err)
	row.ID = uuid.New()
	row.CreatedAt = time.Now().UTC()
	row.AttemptCount = attempts
	return row
}

func TestDrainPublishesAndRecordsFailures(t *testing.T) {
	first := orderRow(t, enums.EventOrderPaid, 0)
	second := orderRow(t, enums.EventOrderPaid, 0)
	f := newRelayFixture(t, config.OutboxConfig{MaxAttempts: 5}, first, second)
	f.sink.errs = []error{errors.New("unavailable")}

	claimed, err := f.relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)
	assert.Equal(t, []uuid.UUID{first.ID}, f.store.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, f.store.published)
	assert.Empty(t, f.store.buried)
	for name, want := range map[string]int{
		"marketplace_outbox_publish_failures_total": 1,
		"marketplace_outbox_published_total":        1,
		"marketplace_outbox_dead_lettered_total":    0,
	} {
		n, err := testutil.GatherAndCount(f.reg, name)
		require.NoError(t, err)
		assert.Equal(t, want, n, name)
	}
}

func TestDrainForwardsEnvelopeWithAttributes(t *testing.T) {
	row := orderRow(t, enums.EventOrderPaid, 0)
	f := newRelayFixture(t, config.OutboxConfig{}, row)

	_, err := f.relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, f.sink.sent, 1)

	out := f.sink.sent[0]
	assert.Equal(t, "orders-topic", out.topic)
	assert.Equal(t, []byte(row.Payload), out.msg.Data)
	env, err := outbox.Open(row.Payload)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"event_id":       env.EventID,
		"event_type":     string(enums.EventOrderPaid),
		"aggregate_type": string(enums.AggregateOrder),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
	}, out.msg.Attributes)
}

func TestDrainDeadLettersUndecodableRows(t *testing.T) {
	row := orderRow(t, enums.EventOrderPaid, 0)
	row.AggregateType = enums.AggregateOrderItem
	f := newRelayFixture(t, config.OutboxConfig{}, row)

	_, err := f.relay.drain(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.sink.sent, "undecodable rows never reach the broker")
	require.Len(t, f.store.buried, 1)
	assert.Equal(t, enums.DeadLetterNonRetryable, f.store.buried[0].reason)

	n, err := testutil.GatherAndCount(f.reg, "marketplace_outbox_dead_lettered_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDrainDeadLettersPermanentSendErrors(t *testing.T) {
	row := orderRow(t, enums.EventOrderPaid, 0)
	f := newRelayFixture(t, config.OutboxConfig{}, row)
	f.sink.errs = []error{registry.Permanent(errors.New("topic deleted"))}

	_, err := f.relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, f.store.buried, 1)
	assert.Equal(t, enums.DeadLetterNonRetryable, f.store.buried[0].reason)
	assert.Empty(t, f.store.failed)
}

func TestDrainDeadLettersAtAttemptCeiling(t *testing.T) {
	row := orderRow(t, enums.EventOrderPaid, 1)
	f := newRelayFixture(t, config.OutboxConfig{MaxAttempts: 2}, row)
	f.sink.errs = []error{errors.New("deadline exceeded")}

	_, err := f.relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, f.store.buried, 1)
	assert.Equal(t, enums.DeadLetterMaxAttempts, f.store.buried[0].reason)
	assert.ErrorContains(t, f.store.buried[0].cause, "deadline exceeded")
	assert.Empty(t, f.store.failed)
}

func TestDrainAbortsWhenDeadLetterWriteFails(t *testing.T) {
	row := orderRow(t, enums.EventOrderPaid, 0)
	row.EventType = "ad_created"
	f := newRelayFixture(t, config.OutboxConfig{}, row)
	f.store.buryErr = errors.New("db down")

	_, err := f.relay.drain(context.Background())
	require.ErrorContains(t, err, "db down")
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newRelayFixture(t, config.OutboxConfig{PollIntervalMS: 5})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := f.relay.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunFailsFastWhenDatabaseIsDown(t *testing.T) {
	f := newRelayFixture(t, config.OutboxConfig{})
	f.relay.db = fakeDB{pingErr: errors.New("refused")}

	err := f.relay.Run(context.Background())
	require.ErrorContains(t, err, "database ping")
}

func TestNewRelayRequiresDependencies(t *testing.T) {
	_, err := NewRelay(RelayParams{})
	require.Error(t, err)
	_, err = NewRelay(RelayParams{
		Logger:   logger.New(logger.Options{ServiceName: "relay-test", Output: io.Discard}),
		DB:       fakeDB{},
		Broker:   fakeDB{},
		Store:    &fakeStore{},
		Registry: &registry.Registry{},
	})
	require.EqualError(t, err, "sink is required")
}

func TestBackoff(t *testing.T) {
	b := backoff{base: 500 * time.Millisecond, limit: 2 * time.Second}
	assert.Equal(t, time.Second, b.fail())
	assert.Equal(t, 2*time.Second, b.fail())
	assert.Equal(t, 2*time.Second, b.fail())
	b.reset()
	assert.Equal(t, time.Second, b.fail())
	assert.Equal(t, 500*time.Millisecond, b.idle())

	b.jitter = 100 * time.Millisecond
	for range 20 {
		got := b.idle()
		assert.GreaterOrEqual(t, got, 500*time.Millisecond)
		assert.Less(t, got, 600*time.Millisecond)
	}
}
