package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-backend/internal/bootstrap"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/registry"
	"github.com/angelmondragon/marketplace-backend/pkg/pubsub"
)

func main() {
	proc := bootstrap.MustStart("outbox-publisher")
	ctx, stop := proc.Context()
	defer stop()
	cfg, logg := proc.Config, proc.Logger

	dbClient, err := proc.Database(ctx)
	if err != nil {
		proc.Fatal(ctx, "failed to open database", err)
	}
	broker, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		proc.Fatal(ctx, "failed to bootstrap pubsub", err)
	}
	proc.Track("pubsub", broker)

	routes, err := registry.New(cfg.PubSub)
	if err != nil {
		proc.Fatal(ctx, "failed to build event registry", err)
	}
	relay, err := NewRelay(RelayParams{
		Config:   cfg.Outbox,
		Logger:   logg,
		DB:       dbClient,
		Broker:   broker,
		Store:    outbox.NewStore(dbClient.DB()),
		Registry: routes,
		Sink:     pubsubSink{publishers: broker, timeout: cfg.Outbox.PublishTimeout},
		Metrics:  metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		proc.Fatal(ctx, "failed to create outbox relay", err)
	}

	logg.Info(ctx, "starting outbox publisher")
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		proc.Fatal(ctx, "outbox publisher stopped unexpectedly", err)
	}
	proc.Shutdown(context.WithoutCancel(ctx))
}
