package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestThrottleRepository_RecordAndCount(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewThrottleRepository(client, ThrottleConfig{KeyPrefix: "throttle:login", TTL: time.Minute})

	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		if err := repo.RecordAttempt(ctx, "203.0.113.5", now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	count, err := repo.CountAttempts(ctx, "203.0.113.5", time.Minute, now.Add(3*time.Second))
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected three attempts, got %d", count)
	}
}

func TestThrottleRepository_TrimWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewThrottleRepository(client, ThrottleConfig{KeyPrefix: "throttle:login", TTL: time.Minute})

	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.RecordAttempt(ctx, "client-1", now.Add(-2*time.Minute)); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}
	if err := repo.RecordAttempt(ctx, "client-1", now); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	if err := repo.TrimWindow(ctx, "client-1", time.Minute, now); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}

	count, err := repo.CountAttempts(ctx, "client-1", 10*time.Minute, now)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one attempt after trim, got %d", count)
	}
}

func TestThrottleRepository_OldestAttempt(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewThrottleRepository(client, ThrottleConfig{KeyPrefix: "throttle:reset", TTL: time.Hour})

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	first := now.Add(-30 * time.Second)
	if err := repo.RecordAttempt(ctx, "client-2", first); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}
	if err := repo.RecordAttempt(ctx, "client-2", now); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	oldest, found, err := repo.OldestAttempt(ctx, "client-2", time.Minute, now)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if !found {
		t.Fatalf("expected an attempt inside the window")
	}
	if !oldest.Equal(first) {
		t.Fatalf("expected oldest %v, got %v", first, oldest)
	}

	_, found, err = repo.OldestAttempt(ctx, "client-3", time.Minute, now)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if found {
		t.Fatalf("expected no attempt for unknown client")
	}
}
