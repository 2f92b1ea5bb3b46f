package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nepalwears/account-service/internal/core/port"
)

// RateLimitRule configures a sliding-window limit scoped per client address.
type RateLimitRule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// RateLimiter applies per-IP sliding window limits backed by Redis. Failures
// of the store fail open: an unavailable limiter must not take logins down
// with it.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// Limit returns a Gin middleware enforcing the provided rule.
func (rl *RateLimiter) Limit(rule RateLimitRule) gin.HandlerFunc {
	if rule.Name == "" {
		rule.Name = "default"
	}

	return func(c *gin.Context) {
		if rl.store == nil || rule.Limit <= 0 || rule.Window <= 0 {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		now := rl.now()
		key := fmt.Sprintf("%s:%s", rule.Name, ip)

		if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
			rl.logger.Warn("rate limit trim failed", zap.String("rule", rule.Name), zap.Error(err))
			c.Next()
			return
		}

		count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
		if err != nil {
			rl.logger.Warn("rate limit count failed", zap.String("rule", rule.Name), zap.Error(err))
			c.Next()
			return
		}

		if count >= rule.Limit {
			reset := now.Add(rule.Window)
			if oldest, ok, err := rl.store.OldestAttempt(ctx, key, rule.Window, now); err == nil && ok {
				reset = oldest.Add(rule.Window)
			}

			retryAfter := reset.Sub(now)
			if retryAfter < 0 {
				retryAfter = 0
			}
			seconds := int(math.Ceil(retryAfter.Seconds()))

			headers := c.Writer.Header()
			headers.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			headers.Set("X-RateLimit-Remaining", "0")
			headers.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			headers.Set("Retry-After", strconv.Itoa(seconds))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, newErrorResponse(c,
				fmt.Sprintf("too many requests, try again in %d seconds", seconds)))
			return
		}

		if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
			rl.logger.Warn("rate limit record failed", zap.String("rule", rule.Name), zap.Error(err))
		}

		remaining := rule.Limit - count - 1
		if remaining < 0 {
			remaining = 0
		}

		headers := c.Writer.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(rule.Window).Unix(), 10))

		c.Next()
	}
}
