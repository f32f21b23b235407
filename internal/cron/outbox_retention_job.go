package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const (
	defaultEventRetention      = 30 * 24 * time.Hour
	defaultDeadLetterRetention = 90 * 24 * time.Hour
)

type publishedEventPruner interface {
	PruneEvents(ctx context.Context, tx *gorm.DB, cutoff time.Time, ceiling int) (int64, error)
}

type deadLetterPruner interface {
	PruneDeadLetters(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams wire the job that keeps the order event outbox
// and its dead-letter table bounded.
type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Events publishedEventPruner
	// DeadLetters is optional; without it only outbox rows are pruned.
	DeadLetters deadLetterPruner

	EventRetention      time.Duration
	DeadLetterRetention time.Duration
	// TerminalAttempts is the publisher's attempt ceiling. Unpublished rows
	// at or above it were dead-lettered and are safe to drop.
	TerminalAttempts int
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("outbox event store required")
	}
	if params.TerminalAttempts <= 0 {
		return nil, fmt.Errorf("terminal attempts must be positive")
	}
	return &outboxRetentionJob{
		logg:             params.Logger,
		db:               params.DB,
		events:           params.Events,
		deadLetters:      params.DeadLetters,
		eventRetention:   durationOr(params.EventRetention, defaultEventRetention),
		dlqRetention:     durationOr(params.DeadLetterRetention, defaultDeadLetterRetention),
		terminalAttempts: params.TerminalAttempts,
		now:              time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg             *logger.Logger
	db               txRunner
	events           publishedEventPruner
	deadLetters      deadLetterPruner
	eventRetention   time.Duration
	dlqRetention     time.Duration
	terminalAttempts int
	now              func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run prunes both tables in one transaction so a failure leaves neither
// half-cleaned.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	eventCutoff := now.Add(-j.eventRetention)
	dlqCutoff := now.Add(-j.dlqRetention)

	var events, deadLetters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.events.PruneEvents(ctx, tx, eventCutoff, j.terminalAttempts)
		if err != nil {
			return fmt.Errorf("prune outbox events: %w", err)
		}
		events = n
		if j.deadLetters == nil {
			return nil
		}
		n, err = j.deadLetters.PruneDeadLetters(ctx, tx, dlqCutoff)
		if err != nil {
			return fmt.Errorf("prune dead letters: %w", err)
		}
		deadLetters = n
		return nil
	})
	if err != nil {
		return err
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"event_cutoff":         eventCutoff,
		"dlq_cutoff":           dlqCutoff,
		"events_deleted":       events,
		"dead_letters_deleted": deadLetters,
	})
	j.logg.Info(logCtx, "outbox retention complete")
	return nil
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
