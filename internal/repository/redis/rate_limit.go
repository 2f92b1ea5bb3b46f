package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nepalwears/account-service/internal/core/port"
)

// ThrottleConfig defines configuration for the sliding window limiter.
type ThrottleConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// ThrottleRepository persists request attempts in Redis sorted sets so the
// transport layer can apply sliding window limits per client address.
type ThrottleRepository struct {
	client *redis.Client
	cfg    ThrottleConfig
}

// NewThrottleRepository constructs a repository using the provided Redis client and config.
func NewThrottleRepository(client *redis.Client, cfg ThrottleConfig) *ThrottleRepository {
	return &ThrottleRepository{client: client, cfg: cfg}
}

// RecordAttempt stores the provided timestamp within the window and refreshes
// the key TTL in one round trip.
func (r *ThrottleRepository) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	key := r.key(identifier)
	member := redis.Z{Score: float64(at.UnixNano()), Member: at.UnixNano()}

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, member)
		if r.cfg.TTL > 0 {
			pipe.Expire(ctx, key, r.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record attempt: %w", err)
	}

	return nil
}

// CountAttempts returns how many attempts occurred within the window ending at reference time.
func (r *ThrottleRepository) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}

	key := r.key(identifier)
	min := strconv.FormatInt(reference.Add(-window).UnixNano(), 10)
	max := strconv.FormatInt(reference.UnixNano(), 10)

	count, err := r.client.ZCount(ctx, key, min, max).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcount: %w", err)
	}

	return int(count), nil
}

// TrimWindow removes attempts older than the provided window relative to reference time.
func (r *ThrottleRepository) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errors.New("window must be positive")
	}

	key := r.key(identifier)
	threshold := strconv.FormatInt(reference.Add(-window).UnixNano(), 10)

	if err := r.client.ZRemRangeByScore(ctx, key, "-inf", threshold).Err(); err != nil {
		return fmt.Errorf("redis zremrangebyscore: %w", err)
	}

	return nil
}

// OldestAttempt returns the oldest attempt remaining inside the active window.
// Callers use it to compute a Retry-After hint.
func (r *ThrottleRepository) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errors.New("window must be positive")
	}

	key := r.key(identifier)
	rng := &redis.ZRangeBy{
		Min:    strconv.FormatInt(reference.Add(-window).UnixNano(), 10),
		Max:    strconv.FormatInt(reference.UnixNano(), 10),
		Offset: 0,
		Count:  1,
	}

	values, err := r.client.ZRangeByScore(ctx, key, rng).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis zrangebyscore: %w", err)
	}

	if len(values) == 0 {
		return time.Time{}, false, nil
	}

	ts, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse timestamp: %w", err)
	}

	return time.Unix(0, ts), true, nil
}

func (r *ThrottleRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, identifier)
}

var _ port.RateLimitStore = (*ThrottleRepository)(nil)
