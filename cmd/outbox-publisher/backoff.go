package main

import (
	"context"
	"math/rand/v2"
	"time"
)

// backoff paces the poll loop: idle polls wait base plus jitter, failed
// batches double the wait up to limit.
type backoff struct {
	base   time.Duration
	limit  time.Duration
	jitter time.Duration
	cur    time.Duration
}

func (b *backoff) reset() { b.cur = 0 }

func (b *backoff) idle() time.Duration {
	return b.base + b.spread()
}

func (b *backoff) fail() time.Duration {
	if b.cur < b.base {
		b.cur = b.base
	}
	b.cur = min(b.cur*2, b.limit)
	return b.cur + b.spread()
}

func (b *backoff) spread() time.Duration {
	if b.jitter <= 0 {
		return 0
	}
	return rand.N(b.jitter)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
