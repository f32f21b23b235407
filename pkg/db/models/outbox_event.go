package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// EventHeader is the routing part of an outbox row. Dead letters keep a copy
// so a parked event can be replayed without the original row.
type EventHeader struct {
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
}

// OutboxEvent is written in the same transaction as the state change it
// announces and is drained to the broker by the outbox publisher.
type OutboxEvent struct {
	ID          uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	EventHeader `gorm:"embedded"`

	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
	AttemptCount int        `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string    `gorm:"column:last_error"`
}

// Pending reports whether the publisher may still pick the row up.
func (e OutboxEvent) Pending(ceiling int) bool {
	return e.PublishedAt == nil && (ceiling <= 0 || e.AttemptCount < ceiling)
}
