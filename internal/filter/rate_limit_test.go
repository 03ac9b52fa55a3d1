package filter

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// TestScenario_RateLimitGlobal is spec.md §8 scenario 3.
func TestScenario_RateLimitGlobal(t *testing.T) {
	t.Parallel()

	r := NewRateLimitGlobal(time.Second, 2)
	base := time.Unix(0, 0)
	clock := base
	r.now = func() time.Time { return clock }

	msg := msgFrom("a@b.com", "")

	clock = base
	if allow, _, _ := r.Check(context.Background(), msg); !allow {
		t.Error("1st check at t=0 should ALLOW")
	}
	clock = base.Add(100 * time.Millisecond)
	if allow, _, _ := r.Check(context.Background(), msg); !allow {
		t.Error("2nd check at t=0.1s should ALLOW")
	}
	clock = base.Add(200 * time.Millisecond)
	if allow, _, _ := r.Check(context.Background(), msg); allow {
		t.Error("3rd check at t=0.2s should BLOCK")
	}
	clock = base.Add(1100 * time.Millisecond)
	if allow, _, _ := r.Check(context.Background(), msg); !allow {
		t.Error("4th check at t=1.1s should ALLOW after window reset")
	}
}

// TestScenario_RateLimitPerSenderPurge is spec.md §8 scenario 4.
func TestScenario_RateLimitPerSenderPurge(t *testing.T) {
	t.Parallel()

	r := NewRateLimitPerSender(100*time.Millisecond, 1, 0)
	base := time.Unix(0, 0)
	clock := base
	r.now = func() time.Time { return clock }

	msgA := msgFrom("a@x.com", "")

	clock = base
	if allow, _, _ := r.Check(context.Background(), msgA); !allow {
		t.Error("a@x at t=0 should ALLOW")
	}
	clock = base.Add(120 * time.Millisecond)
	if allow, _, _ := r.Check(context.Background(), msgA); !allow {
		t.Error("a@x at t=120ms should ALLOW (new window)")
	}

	clock = base.Add(200 * time.Millisecond)
	for i := 0; i < 200; i++ {
		msg := msgFrom(fmt.Sprintf("sender%d@x.com", i), "")
		if _, _, err := r.Check(context.Background(), msg); err != nil {
			t.Fatalf("Check: %v", err)
		}
	}

	clock = base.Add(300 * time.Millisecond)
	if _, _, err := r.Check(context.Background(), msgFrom("trigger-purge@x.com", "")); err != nil {
		t.Fatalf("Check: %v", err)
	}

	// Count the entries whose window is still open at t=300ms; the 200
	// senders' windows end exactly at 300ms, so they no longer count.
	r.mu.Lock()
	live := 0
	for _, c := range r.table {
		if c.tEnd.After(clock) {
			live++
		}
	}
	r.mu.Unlock()
	if live > 200 {
		t.Errorf("live entries after purge = %d, want <= 200", live)
	}
}

func TestRateLimitKeyed_SeparatePerKey(t *testing.T) {
	t.Parallel()

	r := NewRateLimitPerDomain(time.Second, 1, 0)
	base := time.Unix(0, 0)
	r.now = func() time.Time { return base }

	allowA, _, _ := r.Check(context.Background(), msgFrom("u1@a.com", ""))
	allowB, _, _ := r.Check(context.Background(), msgFrom("u1@b.com", ""))
	if !allowA || !allowB {
		t.Errorf("distinct domains should each get their own counter: a=%v b=%v", allowA, allowB)
	}

	allowA2, _, _ := r.Check(context.Background(), msgFrom("u2@a.com", ""))
	if allowA2 {
		t.Error("second message to domain a.com within window should BLOCK")
	}
}

func TestRateLimitKeyed_EvictsOldestWhenOverCap(t *testing.T) {
	t.Parallel()

	r := NewRateLimitPerSender(time.Minute, 10, 2)
	base := time.Unix(0, 0)
	clock := base
	r.now = func() time.Time { return clock }

	clock = base
	r.Check(context.Background(), msgFrom("first@x.com", ""))
	clock = base.Add(time.Second)
	r.Check(context.Background(), msgFrom("second@x.com", ""))
	clock = base.Add(2 * time.Second)
	r.Check(context.Background(), msgFrom("third@x.com", ""))

	if got := r.Len(); got > 2 {
		t.Errorf("table size = %d, want <= 2 after eviction", got)
	}
	r.mu.Lock()
	_, firstKept := r.table["first@x.com"]
	_, thirdKept := r.table["third@x.com"]
	r.mu.Unlock()
	if firstKept {
		t.Error("first@x.com (closest to expiry) should have been evicted")
	}
	if !thirdKept {
		t.Error("third@x.com (newest window) should still be tracked")
	}
}

func TestRateLimit_SharedInternalMutex(t *testing.T) {
	t.Parallel()

	r := NewRateLimitGlobal(time.Second, 1000)
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func() {
			r.Check(context.Background(), msgFrom("a@b.com", ""))
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	r.mu.Lock()
	n := r.counter.n
	r.mu.Unlock()
	if n != 50 {
		t.Errorf("counter = %d, want 50 (strict increment ordering under mutex)", n)
	}
}
