package outbox

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// Writer appends domain events inside the caller's transaction, so an event
// exists exactly when the change it describes commits.
type Writer struct {
	store *Store
	logg  *logger.Logger
	now   func() time.Time
}

func NewWriter(store *Store, logg *logger.Logger) *Writer {
	return &Writer{
		store: store,
		logg:  logg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (w *Writer) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	row, env, err := Seal(event, w.now())
	if err != nil {
		return err
	}
	if err := w.store.Append(tx, &row); err != nil {
		return err
	}
	if w.logg != nil {
		w.logg.Debug(w.logg.WithFields(ctx, map[string]any{
			"outbox_id":    row.ID.String(),
			"event_id":     env.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// EmitOnce is Emit guarded by an existence check on (type, aggregate). Used
// where the same trigger can arrive more than once, such as gateway
// webhooks.
func (w *Writer) EmitOnce(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	seen, err := w.store.Has(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil || seen {
		return err
	}
	return w.Emit(ctx, tx, event)
}
