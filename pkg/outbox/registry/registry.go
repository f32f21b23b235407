// Package registry maps outbox event types to their broker topic and payload
// schema, and decodes stored rows before they are published.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

// Route is where one event type goes and what its data must decode into.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// Decoded is a validated outbox row ready to publish.
type Decoded struct {
	Route    Route
	Envelope outbox.Envelope
	Payload  any
}

// Registry holds one Route per supported event type.
type Registry struct {
	routes map[enums.OutboxEventType]Route
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) Route {
	return Route{
		EventType:     eventType,
		AggregateType: aggregate,
		newPayload:    func() any { return new(T) },
	}
}

func New(cfg config.PubSubConfig) (*Registry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	routes := []Route{
		route[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder),
		route[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder),
		route[payloads.OrderCancelledEvent](enums.EventOrderCancelled, enums.AggregateOrder),
		route[payloads.OrderPaidEvent](enums.EventOrderPaid, enums.AggregateOrder),
		route[payloads.ExchangeEvent](enums.EventExchangeRequested, enums.AggregateOrder),
		route[payloads.ExchangeEvent](enums.EventExchangeApproved, enums.AggregateOrder),
		route[payloads.OrderItemStatusChangedEvent](enums.EventOrderItemStatusChanged, enums.AggregateOrderItem),
		route[payloads.RefundEvent](enums.EventRefundRequested, enums.AggregateOrderItem),
		route[payloads.RefundEvent](enums.EventRefundApproved, enums.AggregateOrderItem),
		route[payloads.RefundEvent](enums.EventRefundRejected, enums.AggregateOrderItem),
		route[payloads.RefundEvent](enums.EventRefundCompleted, enums.AggregateOrderItem),
		route[payloads.RefundEvent](enums.EventRefundFailed, enums.AggregateOrderItem),
	}
	reg := &Registry{routes: make(map[enums.OutboxEventType]Route, len(routes))}
	for _, r := range routes {
		r.Topic = cfg.OrdersTopic
		reg.routes[r.EventType] = r
	}
	return reg, nil
}

// Route looks up the route for an event type.
func (r *Registry) Route(eventType enums.OutboxEventType) (Route, bool) {
	rt, ok := r.routes[eventType]
	return rt, ok
}

// Decode checks a row against its route and decodes the typed payload. Every
// error it returns is permanent.
func (r *Registry) Decode(event models.OutboxEvent) (*Decoded, error) {
	rt, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, Permanent(fmt.Errorf("no route for event type %q", event.EventType))
	case rt.AggregateType != event.AggregateType:
		return nil, Permanent(fmt.Errorf("%s belongs to %s, row says %s", event.EventType, rt.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, Permanent(fmt.Errorf("%s row has no aggregate id", event.EventType))
	}

	env, err := outbox.Open(event.Payload)
	if err != nil {
		return nil, Permanent(err)
	}
	if !env.HasData() {
		return nil, Permanent(fmt.Errorf("%s envelope has no data", event.EventType))
	}
	payload := rt.newPayload()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, Permanent(fmt.Errorf("decode %s data: %w", event.EventType, err))
	}
	return &Decoded{Route: rt, Envelope: env, Payload: payload}, nil
}
