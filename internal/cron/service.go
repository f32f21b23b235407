package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
)

const (
	defaultTick = time.Minute
	minLockTTL  = time.Minute
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronMetrics
	// Tick is how often due jobs are checked. Defaults to the shortest job
	// interval, capped at one minute.
	Tick time.Duration
	Now  func() time.Time
}

// Service runs each registered job on its own cadence. Every job runs once
// at startup, then again whenever its interval has elapsed.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronMetrics
	tick     time.Duration
	now      func() time.Time
	nextRun  map[string]time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	tick := params.Tick
	if tick <= 0 {
		tick = registry.shortest(defaultTick)
		if tick > defaultTick {
			tick = defaultTick
		}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		tick:     tick,
		now:      now,
		nextRun:  map[string]time.Time{},
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	s.runDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue runs every job whose next run time has passed. A job skipped
// because another worker holds its lock is rescheduled like a completed one.
func (s *Service) runDue(ctx context.Context) {
	for _, entry := range s.registry.Entries() {
		name := entry.Job.Name()
		now := s.now()
		if next, ok := s.nextRun[name]; ok && now.Before(next) {
			continue
		}
		s.nextRun[name] = now.Add(entry.Every)
		s.runLocked(ctx, entry)
	}
}

func (s *Service) runLocked(ctx context.Context, entry Entry) {
	name := entry.Job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	locked, err := s.lock.Acquire(jobCtx, name, lockTTL(entry.Every))
	if err != nil {
		s.logg.Error(jobCtx, "cron lock acquire failed", err)
		s.metrics.IncLockError(name)
		return
	}
	if !locked {
		s.logg.Info(jobCtx, "job held by another worker; skipping")
		return
	}
	defer func() {
		if err := s.lock.Release(jobCtx, name); err != nil {
			s.logg.Error(jobCtx, "failed to release cron lock", err)
		}
	}()

	s.logg.Info(jobCtx, "job start")
	start := s.now()
	err = entry.Job.Run(jobCtx)
	end := s.now()
	s.metrics.ObserveRun(name, end.Sub(start), end, err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", end.Sub(start).Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Info(jobCtx, "job completed")
}

// lockTTL covers most of one interval so a slow run is not duplicated, but
// expires before the next run is due if the holder crashed.
func lockTTL(every time.Duration) time.Duration {
	ttl := every - every/4
	if ttl < minLockTTL {
		return minLockTTL
	}
	return ttl
}
