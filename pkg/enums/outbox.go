package enums

// OutboxAggregateType identifies the aggregate an outbox row describes.
type OutboxAggregateType string

const (
	AggregateOrder     OutboxAggregateType = "order"
	AggregateOrderItem OutboxAggregateType = "order_item"
)

var aggregateTypes = values[OutboxAggregateType]{AggregateOrder, AggregateOrderItem}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(raw string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", raw)
}

// OutboxEventType names a domain event stored in outbox_events.
type OutboxEventType string

const (
	EventOrderCreated           OutboxEventType = "order_created"
	EventOrderStatusChanged     OutboxEventType = "order_status_changed"
	EventOrderItemStatusChanged OutboxEventType = "order_item_status_changed"
	EventOrderCancelled         OutboxEventType = "order_cancelled"
	EventOrderPaid              OutboxEventType = "order_paid"
	EventExchangeRequested      OutboxEventType = "exchange_requested"
	EventExchangeApproved       OutboxEventType = "exchange_approved"
	EventRefundRequested        OutboxEventType = "refund_requested"
	EventRefundApproved         OutboxEventType = "refund_approved"
	EventRefundRejected         OutboxEventType = "refund_rejected"
	EventRefundCompleted        OutboxEventType = "refund_completed"
	EventRefundFailed           OutboxEventType = "refund_failed"
)

var eventTypes = values[OutboxEventType]{
	EventOrderCreated, EventOrderStatusChanged, EventOrderItemStatusChanged, EventOrderCancelled,
	EventOrderPaid, EventExchangeRequested, EventExchangeApproved, EventRefundRequested,
	EventRefundApproved, EventRefundRejected, EventRefundCompleted, EventRefundFailed,
}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(raw string) (OutboxEventType, error) {
	return eventTypes.parse("event type", raw)
}

// DeadLetterReason records why the publisher gave up on an event.
type DeadLetterReason string

const (
	DeadLetterMaxAttempts  DeadLetterReason = "max_attempts"
	DeadLetterNonRetryable DeadLetterReason = "non_retryable"
)

var deadLetterReasons = values[DeadLetterReason]{DeadLetterMaxAttempts, DeadLetterNonRetryable}

func (r DeadLetterReason) IsValid() bool { return deadLetterReasons.has(r) }
