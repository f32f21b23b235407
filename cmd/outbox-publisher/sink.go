package main

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/marketplace-backend/pkg/outbox/registry"
)

// sink delivers one message and waits for the broker's ack.
type sink interface {
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) error
}

type topicPublishers interface {
	Publisher(topic string) *gcppubsub.Publisher
}

type pubsubSink struct {
	publishers topicPublishers
	timeout    time.Duration
}

func (s pubsubSink) Send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.publishers.Publisher(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("no publisher for topic %q", topic))
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	_, err := pub.Publish(ctx, msg).Get(ctx)
	return err
}
