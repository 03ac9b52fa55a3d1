package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisQueue(t *testing.T) *RedisQueue[string] {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	q := NewRedisQueue[string](RedisConfig{
		Host:    mr.Host(),
		Port:    mustAtoi(t, mr.Port()),
		Key:     "autoreply:test",
		Timeout: time.Second,
	}, 2)
	t.Cleanup(func() { q.Close() })
	return q
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			t.Fatalf("not a port number: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func TestRedisQueue_PutGetFIFO(t *testing.T) {
	t.Parallel()
	q := newTestRedisQueue(t)
	ctx := context.Background()

	if err := q.Put(ctx, "first", 0); err != nil {
		t.Fatalf("Put(first): %v", err)
	}
	if err := q.Put(ctx, "second", 0); err != nil {
		t.Fatalf("Put(second): %v", err)
	}

	got, ok, err := q.Get(ctx, time.Second)
	if err != nil || !ok {
		t.Fatalf("Get() = %q, %v, %v", got, ok, err)
	}
	if got != "first" {
		t.Errorf("Get() = %q, want %q", got, "first")
	}
}

func TestRedisQueue_GetEmptyTimesOutWithoutError(t *testing.T) {
	t.Parallel()
	q := newTestRedisQueue(t)

	_, ok, err := q.Get(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Get() error = %v, want nil", err)
	}
	if ok {
		t.Error("Get() ok = true, want false on empty timeout")
	}
}

func TestRedisQueue_PutFullReturnsErrFull(t *testing.T) {
	t.Parallel()
	q := newTestRedisQueue(t) // capacity 2
	ctx := context.Background()

	if err := q.Put(ctx, "a", 0); err != nil {
		t.Fatalf("Put(a): %v", err)
	}
	if err := q.Put(ctx, "b", 0); err != nil {
		t.Fatalf("Put(b): %v", err)
	}
	if err := q.Put(ctx, "c", 100*time.Millisecond); !errors.Is(err, ErrFull) {
		t.Errorf("Put(c) err = %v, want ErrFull", err)
	}
}

func TestRedisQueue_Capabilities(t *testing.T) {
	t.Parallel()
	q := newTestRedisQueue(t)

	if !q.IsThreadSafe() {
		t.Error("RedisQueue should be thread-safe")
	}
	if !q.IsProcessSafe() {
		t.Error("RedisQueue should be process-safe")
	}
}
