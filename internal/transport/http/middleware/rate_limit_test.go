package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

type fakeRateLimitStore struct {
	trimErr   error
	count     int
	countErr  error
	oldest    time.Time
	hasOldest bool
	oldestErr error
	recordErr error

	trimmedKeys []string
	recordedKey string
	recordCalls int
}

func (f *fakeRateLimitStore) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	f.trimmedKeys = append(f.trimmedKeys, identifier)
	return f.trimErr
}

func (f *fakeRateLimitStore) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	return f.count, f.countErr
}

func (f *fakeRateLimitStore) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	f.recordedKey = identifier
	f.recordCalls++
	return f.recordErr
}

func (f *fakeRateLimitStore) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	return f.oldest, f.hasOldest, f.oldestErr
}

func performLimited(t *testing.T, limiter *RateLimiter, rule RateLimitRule) *httptest.ResponseRecorder {
	t.Helper()

	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(limiter.Limit(rule))
	router.GET("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:51422"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	return rr
}

func TestRateLimiterAllowsWhenBelowLimit(t *testing.T) {
	now := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)

	store := &fakeRateLimitStore{count: 2}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })

	rr := performLimited(t, limiter, RateLimitRule{Name: "login", Limit: 5, Window: time.Minute})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if store.recordCalls != 1 {
		t.Fatalf("expected one recorded attempt, got %d", store.recordCalls)
	}
	if store.recordedKey != "login:192.0.2.1" {
		t.Fatalf("unexpected rate limit key %q", store.recordedKey)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Fatalf("expected remaining 2, got %q", got)
	}
}

func TestRateLimiterRejectsWhenLimitReached(t *testing.T) {
	now := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)
	oldest := now.Add(-40 * time.Second)

	store := &fakeRateLimitStore{
		count:     5,
		oldest:    oldest,
		hasOldest: true,
	}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })

	rr := performLimited(t, limiter, RateLimitRule{Name: "login", Limit: 5, Window: time.Minute})

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if store.recordCalls != 0 {
		t.Fatalf("rejected request must not record an attempt")
	}

	retryAfter, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("parse Retry-After: %v", err)
	}
	if retryAfter != 20 {
		t.Fatalf("expected retry after 20s, got %d", retryAfter)
	}

	var body ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error == "" {
		t.Fatalf("expected an error message in the response body")
	}
}

func TestRateLimiterFailsOpenOnStoreErrors(t *testing.T) {
	store := &fakeRateLimitStore{countErr: errors.New("redis unavailable")}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t))

	rr := performLimited(t, limiter, RateLimitRule{Name: "login", Limit: 5, Window: time.Minute})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected the limiter to fail open, got %d", rr.Code)
	}
}

func TestRateLimiterSkipsDisabledRule(t *testing.T) {
	store := &fakeRateLimitStore{count: 100}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t))

	rr := performLimited(t, limiter, RateLimitRule{Name: "login", Limit: 0, Window: time.Minute})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected disabled rule to pass through, got %d", rr.Code)
	}
	if len(store.trimmedKeys) != 0 {
		t.Fatalf("disabled rule must not touch the store")
	}
}
