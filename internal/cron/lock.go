package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lock gives one worker at a time the right to run a named job.
type Lock interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

// RedisLock stores one SETNX key per job under prefix. The value is an
// owner token so a worker never deletes a lock that expired and was taken
// by someone else.
type RedisLock struct {
	client   redisStore
	prefix   string
	instance string

	mu     sync.Mutex
	owners map[string]string
}

func NewRedisLock(client redisStore, prefix, instance string) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if prefix == "" {
		return nil, errors.New("lock prefix is required")
	}
	return &RedisLock{
		client:   client,
		prefix:   prefix,
		instance: instance,
		owners:   map[string]string{},
	}, nil
}

func (l *RedisLock) key(name string) string {
	return l.prefix + ":" + name
}

func (l *RedisLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	owner := uuid.NewString()
	if l.instance != "" {
		owner = l.instance + "/" + owner
	}
	ok, err := l.client.SetNX(ctx, l.key(name), owner, ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", name, err)
	}
	if ok {
		l.mu.Lock()
		l.owners[name] = owner
		l.mu.Unlock()
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	owner, held := l.owners[name]
	delete(l.owners, name)
	l.mu.Unlock()
	if !held {
		return nil
	}

	if _, err := l.client.CompareAndDelete(ctx, l.key(name), owner); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}
