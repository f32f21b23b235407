package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// OutboxDLQ parks an event the publisher gave up on.
type OutboxDLQ struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	EventID     uuid.UUID `gorm:"column:event_id;type:uuid;not null;index"`
	EventHeader `gorm:"embedded"`

	ErrorReason  enums.DeadLetterReason `gorm:"column:error_reason;type:text;not null"`
	ErrorMessage *string                `gorm:"column:error_message"`
	AttemptCount int                    `gorm:"column:attempt_count;not null;default:0"`
	FailedAt     time.Time              `gorm:"column:failed_at"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (OutboxDLQ) TableName() string { return "outbox_dlq" }
