package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// maxErrorText bounds error strings kept on outbox and dead-letter rows.
const maxErrorText = 1024

var errNoTx = errors.New("outbox: transaction required")

// Store owns the outbox_events and outbox_dlq tables. Writes on the publish
// path take the caller's transaction; pruning may fall back to the store's
// own handle.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(tx *gorm.DB, row *models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(row).Error
}

// Has reports whether an event of this type was already recorded for the
// aggregate.
func (s *Store) Has(tx *gorm.DB, eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, aggregateID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, errNoTx
	}
	var ids []uuid.UUID
	err := tx.Model(&models.OutboxEvent{}).
		Where("aggregate_type = ? AND aggregate_id = ? AND event_type = ?", aggregateType, aggregateID, eventType).
		Limit(1).
		Pluck("id", &ids).Error
	return len(ids) > 0, err
}

// Claim locks up to limit pending rows, oldest first. Rows another publisher
// holds are skipped rather than waited on.
func (s *Store) Claim(tx *gorm.DB, limit, ceiling int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	q := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL")
	if ceiling > 0 {
		q = q.Where("attempt_count < ?", ceiling)
	}
	var rows []models.OutboxEvent
	err := q.Order("created_at, id").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *Store) MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return s.update(tx, id, map[string]any{"published_at": at, "last_error": nil})
}

// RecordFailure bumps the attempt counter after a retryable publish error.
func (s *Store) RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error {
	return s.update(tx, id, map[string]any{
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"last_error":    clip(cause),
	})
}

// Bury copies the event into outbox_dlq and pins its attempt count at the
// ceiling so Claim never returns it again. Both writes share tx.
func (s *Store) Bury(tx *gorm.DB, event models.OutboxEvent, reason enums.DeadLetterReason, cause error, at time.Time, ceiling int) error {
	if tx == nil {
		return errNoTx
	}
	msg := clip(cause)
	letter := models.OutboxDLQ{
		EventID:      event.ID,
		EventHeader:  event.EventHeader,
		ErrorReason:  reason,
		ErrorMessage: &msg,
		AttemptCount: event.AttemptCount,
		FailedAt:     at,
	}
	if err := tx.Create(&letter).Error; err != nil {
		return err
	}
	return s.update(tx, event.ID, map[string]any{"attempt_count": ceiling, "last_error": msg})
}

// DeadLetter returns the parked copy of an event, or nil when there is none.
func (s *Store) DeadLetter(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var letter models.OutboxDLQ
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&letter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &letter, nil
}

// PruneEvents drops rows published before cutoff and dead rows (attempts at
// or above ceiling) created before cutoff.
func (s *Store) PruneEvents(ctx context.Context, tx *gorm.DB, cutoff time.Time, ceiling int) (int64, error) {
	res := s.handle(tx).WithContext(ctx).
		Where("published_at < ? OR (published_at IS NULL AND attempt_count >= ? AND created_at < ?)", cutoff, ceiling, cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func (s *Store) PruneDeadLetters(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := s.handle(tx).WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

func (s *Store) update(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

func (s *Store) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func clip(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := err.Error()
	if len(msg) > maxErrorText {
		return msg[:maxErrorText]
	}
	return msg
}
