// Package ratelimit implements a fixed-window request counter kept in a
// store shared by every gateway instance.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrLimitExceeded    = errors.New("rate limit exceeded")
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

const keyPrefix = "rate-"

// CounterStore is the subset of counter operations the limiter needs.
type CounterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type Limiter struct {
	store     CounterStore
	threshold int64
	window    time.Duration
}

func New(store CounterStore, threshold int, window time.Duration) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store is required")
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("ratelimit: threshold must be > 0, got %d", threshold)
	}
	if window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be > 0, got %s", window)
	}
	return &Limiter{store: store, threshold: int64(threshold), window: window}, nil
}

// Key returns the counter key for a client identity.
func Key(identity string) string {
	return keyPrefix + identity
}

// Increment bumps the counter for key and arms its expiry on the first hit
// of a window. INCR and EXPIRE are two commands, so two callers racing on a
// fresh key may both arm the same TTL. A counter whose expiry could not be
// armed is deleted, otherwise it would never expire.
func (l *Limiter) Increment(ctx context.Context, key string) (int64, error) {
	count, err := l.store.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: incr %s: %w", ErrStoreUnavailable, key, err)
	}

	if count == 1 {
		if err := l.store.Expire(ctx, key, l.window); err != nil {
			err = fmt.Errorf("%w: expire %s: %w", ErrStoreUnavailable, key, err)
			if delErr := l.store.Del(ctx, key); delErr != nil {
				err = errors.Join(err, fmt.Errorf("del %s: %w", key, delErr))
			}
			return 0, err
		}
	}

	return count, nil
}

// IsAllowed reports whether count is within the threshold.
func (l *Limiter) IsAllowed(count int64) bool {
	return count <= l.threshold
}

// Admit counts one request for identity and fails with ErrLimitExceeded
// once the window's threshold is passed.
func (l *Limiter) Admit(ctx context.Context, identity string) error {
	count, err := l.Increment(ctx, Key(identity))
	if err != nil {
		return err
	}
	if !l.IsAllowed(count) {
		return fmt.Errorf("%w: %s made %d requests", ErrLimitExceeded, identity, count)
	}
	return nil
}

func (l *Limiter) Threshold() int64 { return l.threshold }

func (l *Limiter) Window() time.Duration { return l.window }
