package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	attemptKeyPrefix = "login:attempts:"
	lockKeyPrefix    = "login:lock:"
)

// Limiter throttles login attempts per client IP.
type Limiter interface {
	// CheckLock returns how long the client stays locked out, zero when
	// it may try.
	CheckLock(ctx context.Context, ip string) (time.Duration, error)
	// RecordFailure counts one failed attempt and returns how many
	// remain before the lockout engages.
	RecordFailure(ctx context.Context, ip string) (int, error)
	// Reset clears the failure count after a successful login.
	Reset(ctx context.Context, ip string) error
}

// RedisLimiter counts failures in redis so the lockout survives restarts
// and is shared across instances.
type RedisLimiter struct {
	rdb          *redis.Client
	window       time.Duration
	lockDuration time.Duration
	maxAttempts  int
}

// NewRedisLimiter creates a limiter with the login lockout policy:
// maxAttempts failures inside window lock the IP for lockDuration.
func NewRedisLimiter(rdb *redis.Client, window, lockDuration time.Duration, maxAttempts int) *RedisLimiter {
	return &RedisLimiter{
		rdb:          rdb,
		window:       window,
		lockDuration: lockDuration,
		maxAttempts:  maxAttempts,
	}
}

// CheckLock implements Limiter.
func (l *RedisLimiter) CheckLock(ctx context.Context, ip string) (time.Duration, error) {
	ttl, err := l.rdb.PTTL(ctx, lockKeyPrefix+ip).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to check login lock: %w", err)
	}
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// RecordFailure implements Limiter.
func (l *RedisLimiter) RecordFailure(ctx context.Context, ip string) (int, error) {
	key := attemptKeyPrefix + ip
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to record login failure: %w", err)
	}
	if count == 1 {
		// The window starts at the first failure.
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return 0, fmt.Errorf("failed to set attempt window: %w", err)
		}
	}

	if count >= int64(l.maxAttempts) {
		pipe := l.rdb.TxPipeline()
		pipe.Set(ctx, lockKeyPrefix+ip, 1, l.lockDuration)
		pipe.Del(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("failed to engage login lock: %w", err)
		}
		return 0, nil
	}

	remaining := l.maxAttempts - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset implements Limiter.
func (l *RedisLimiter) Reset(ctx context.Context, ip string) error {
	if err := l.rdb.Del(ctx, attemptKeyPrefix+ip, lockKeyPrefix+ip).Err(); err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}
