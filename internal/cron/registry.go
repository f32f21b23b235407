package cron

import (
	"context"
	"fmt"
	"time"
)

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with its cadence.
type Entry struct {
	Job   Job
	Every time.Duration
}

// Registry holds the scheduled jobs in registration order.
type Registry struct {
	entries []Entry
	names   map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: map[string]struct{}{}}
}

// Register schedules job every interval. Names key the per-job lock, so
// they must be unique.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("job required")
	}
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name())
	}
	if _, dup := r.names[job.Name()]; dup {
		return fmt.Errorf("job %s already registered", job.Name())
	}
	r.names[job.Name()] = struct{}{}
	r.entries = append(r.entries, Entry{Job: job, Every: every})
	return nil
}

func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// shortest returns the smallest registered interval, or fallback when empty.
func (r *Registry) shortest(fallback time.Duration) time.Duration {
	var least time.Duration
	for _, e := range r.entries {
		if least == 0 || e.Every < least {
			least = e.Every
		}
	}
	if least == 0 {
		return fallback
	}
	return least
}
