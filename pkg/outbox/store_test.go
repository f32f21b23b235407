package outbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

func appendEvent(t *testing.T, conn *gorm.DB, store *Store, eventType enums.OutboxEventType, createdAt time.Time) models.OutboxEvent {
	t.Helper()
	row, _, err := Seal(DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          map[string]string{"k": "v"},
	}, createdAt)
	require.NoError(t, err)
	row.CreatedAt = createdAt
	require.NoError(t, store.Append(conn, &row))
	return row
}

func loadEvent(t *testing.T, conn *gorm.DB, id uuid.UUID) models.OutboxEvent {
	t.Helper()
	var row models.OutboxEvent
	require.NoError(t, conn.Take(&row, "id = ?", id).Error)
	return row
}

func TestStoreClaimSkipsPublishedAndExhaustedRows(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewStore(conn)
	base := time.Now().UTC().Add(-time.Hour)

	second := appendEvent(t, conn, store, enums.EventOrderPaid, base.Add(2*time.Second))
	first := appendEvent(t, conn, store, enums.EventOrderCreated, base.Add(time.Second))
	published := appendEvent(t, conn, store, enums.EventOrderCreated, base)
	exhausted := appendEvent(t, conn, store, enums.EventOrderCreated, base)

	require.NoError(t, store.MarkPublished(conn, published.ID, base))
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", exhausted.ID).Update("attempt_count", 3).Error)

	rows, err := store.Claim(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, first.ID, rows[0].ID)
	require.Equal(t, second.ID, rows[1].ID)

	rows, err = store.Claim(conn, 1, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestStoreRecordFailureCountsAttempts(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewStore(conn)
	row := appendEvent(t, conn, store, enums.EventOrderCreated, time.Now().UTC())

	require.NoError(t, store.RecordFailure(conn, row.ID, errors.New("deadline exceeded")))
	require.NoError(t, store.RecordFailure(conn, row.ID, errors.New("unavailable")))

	got := loadEvent(t, conn, row.ID)
	require.Equal(t, 2, got.AttemptCount)
	require.NotNil(t, got.LastError)
	require.Equal(t, "unavailable", *got.LastError)
	require.True(t, got.Pending(3))
	require.False(t, got.Pending(2))
}

func TestStoreBuryParksEventAndStopsClaims(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewStore(conn)
	row := appendEvent(t, conn, store, enums.EventOrderCreated, time.Now().UTC())
	long := errors.New(strings.Repeat("x", maxErrorText+10))

	require.NoError(t, store.Bury(conn, row, enums.DeadLetterNonRetryable, long, time.Now().UTC(), 5))

	letter, err := store.DeadLetter(context.Background(), row.ID)
	require.NoError(t, err)
	require.NotNil(t, letter)
	require.NotEqual(t, uuid.Nil, letter.ID)
	require.Equal(t, row.EventType, letter.EventType)
	require.JSONEq(t, string(row.Payload), string(letter.Payload))
	require.Equal(t, enums.DeadLetterNonRetryable, letter.ErrorReason)
	require.Len(t, *letter.ErrorMessage, maxErrorText)

	require.Equal(t, 5, loadEvent(t, conn, row.ID).AttemptCount)
	rows, err := store.Claim(conn, 10, 5)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestStoreDeadLetterMissing(t *testing.T) {
	letter, err := NewStore(dbtest.Open(t)).DeadLetter(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, letter)
}

func TestStorePrune(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewStore(conn)
	now := time.Now().UTC()
	cutoff := now.Add(-24 * time.Hour)

	oldPublished := appendEvent(t, conn, store, enums.EventOrderCreated, now.Add(-72*time.Hour))
	require.NoError(t, store.MarkPublished(conn, oldPublished.ID, now.Add(-48*time.Hour)))
	oldDead := appendEvent(t, conn, store, enums.EventOrderCreated, now.Add(-72*time.Hour))
	require.NoError(t, store.Bury(conn, oldDead, enums.DeadLetterMaxAttempts, errors.New("gave up"), now.Add(-48*time.Hour), 4))
	oldPending := appendEvent(t, conn, store, enums.EventOrderCreated, now.Add(-72*time.Hour))
	freshPublished := appendEvent(t, conn, store, enums.EventOrderCreated, now)
	require.NoError(t, store.MarkPublished(conn, freshPublished.ID, now))

	deleted, err := store.PruneEvents(context.Background(), nil, cutoff, 4)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	var left []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Order("created_at").Pluck("id", &left).Error)
	require.ElementsMatch(t, []uuid.UUID{oldPending.ID, freshPublished.ID}, left)

	deleted, err = store.PruneDeadLetters(context.Background(), conn, cutoff)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}

func TestStoreRequiresTransaction(t *testing.T) {
	store := NewStore(nil)
	require.ErrorIs(t, store.Append(nil, &models.OutboxEvent{}), errNoTx)
	_, err := store.Claim(nil, 1, 1)
	require.ErrorIs(t, err, errNoTx)
	require.ErrorIs(t, store.Bury(nil, models.OutboxEvent{}, enums.DeadLetterMaxAttempts, nil, time.Now(), 1), errNoTx)
}
