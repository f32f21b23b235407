package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

type database interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type eventStore interface {
	Claim(tx *gorm.DB, limit, ceiling int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	Bury(tx *gorm.DB, event models.OutboxEvent, reason enums.DeadLetterReason, cause error, at time.Time, ceiling int) error
}

type decoder interface {
	Decode(models.OutboxEvent) (*registry.Decoded, error)
}

type RelayParams struct {
	Config   config.OutboxConfig
	Logger   *logger.Logger
	DB       database
	Broker   pinger
	Store    eventStore
	Registry decoder
	Sink     sink
	Metrics  *metrics.OutboxMetrics
	Now      func() time.Time
}

// Relay moves committed outbox rows to the broker. Each batch is claimed
// with SKIP LOCKED inside one transaction, so replicas split the backlog
// instead of double-publishing it.
type Relay struct {
	logg     *logger.Logger
	db       database
	broker   pinger
	store    eventStore
	registry decoder
	sink     sink
	metrics  *metrics.OutboxMetrics
	now      func() time.Time

	batchSize int
	ceiling   int
	pace      backoff
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database is required")
	case p.Broker == nil:
		return nil, errors.New("broker is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Sink == nil:
		return nil, errors.New("sink is required")
	}
	now := p.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	poll := time.Duration(p.Config.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = defaultPoll
	}
	return &Relay{
		logg:      p.Logger,
		db:        p.DB,
		broker:    p.Broker,
		store:     p.Store,
		registry:  p.Registry,
		sink:      p.Sink,
		metrics:   p.Metrics,
		now:       now,
		batchSize: orDefault(p.Config.BatchSize, defaultBatchSize),
		ceiling:   orDefault(p.Config.MaxAttempts, defaultMaxAttempts),
		pace:      backoff{base: poll, limit: maxBackoff, jitter: jitterWindow},
	}, nil
}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run drains the outbox until ctx ends. A full batch is followed by another
// claim straight away; a short batch means the backlog is empty and the
// relay waits one poll interval.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := r.broker.Ping(ctx); err != nil {
		return fmt.Errorf("broker ping: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		claimed, err := r.drain(ctx)
		var wait time.Duration
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			wait = r.pace.fail()
		case claimed >= r.batchSize:
			r.pace.reset()
			continue
		default:
			r.pace.reset()
			wait = r.pace.idle()
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// drain claims one batch and settles every row in it. Only bookkeeping
// failures abort the transaction; publish failures are recorded on the row.
func (r *Relay) drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.Claim(tx, r.batchSize, r.ceiling)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		claimed = len(rows)
		for _, row := range rows {
			if err := r.settle(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	})

	decoded, err := r.registry.Decode(row)
	if err != nil {
		return r.bury(logCtx, tx, row, enums.DeadLetterNonRetryable, err)
	}
	logCtx = r.logg.WithFields(logCtx, map[string]any{
		"event_id": decoded.Envelope.EventID,
		"topic":    decoded.Route.Topic,
	})

	sendErr := r.sink.Send(ctx, decoded.Route.Topic, message(row, decoded))
	switch {
	case sendErr == nil:
		if err := r.store.MarkPublished(tx, row.ID, r.now()); err != nil {
			return fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		r.metrics.IncPublished(string(row.EventType))
		r.logg.Debug(logCtx, "outbox event published")
		return nil
	case registry.IsPermanent(sendErr):
		return r.bury(logCtx, tx, row, enums.DeadLetterNonRetryable, sendErr)
	case row.AttemptCount+1 >= r.ceiling:
		return r.bury(logCtx, tx, row, enums.DeadLetterMaxAttempts, fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, sendErr))
	}

	r.metrics.IncFailure(string(row.EventType))
	r.logg.Warn(r.logg.WithField(logCtx, "error", sendErr.Error()), "outbox publish failed, will retry")
	if err := r.store.RecordFailure(tx, row.ID, sendErr); err != nil {
		return fmt.Errorf("record %s failure: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) bury(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.DeadLetterReason, cause error) error {
	if err := r.store.Bury(tx, row, reason, cause, r.now(), r.ceiling); err != nil {
		return fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	r.metrics.IncDeadLettered(string(reason))
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"dead_letter_reason": reason,
		"error":              cause.Error(),
	}), "outbox event dead-lettered")
	return nil
}

// message forwards the stored envelope unchanged; attributes let
// subscribers filter without decoding the body.
func message(row models.OutboxEvent, decoded *registry.Decoded) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":       decoded.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}
