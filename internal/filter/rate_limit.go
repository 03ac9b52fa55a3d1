package filter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ashgrove/autoreply/internal/mail"
)

// windowCounter is the per-key state of spec.md §3 "Rule-chain
// state": a count and the time the current window ends. The reset-
// on-expiry shape mirrors the daily-token accumulator pattern used
// elsewhere in this codebase's ancestry for midnight rollover.
type windowCounter struct {
	n    int
	tEnd time.Time
}

// checkWindow applies the increment-then-check rule to c at time t,
// resetting the window first if it has expired. Returns the
// over-limit decision and the counter values for the reason string.
func checkWindow(c *windowCounter, t time.Time, window time.Duration, limit int) (allow bool, n, lim int, tEnd time.Time) {
	if t.After(c.tEnd) {
		c.n = 0
		c.tEnd = t.Add(window)
	}
	c.n++
	return c.n <= limit, c.n, limit, c.tEnd
}

// RateLimitGlobal enforces a single shared counter across all senders
// (spec.md §4.D rule 4).
type RateLimitGlobal struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu      sync.Mutex
	counter windowCounter
}

// NewRateLimitGlobal constructs a global rate-limit rule with window W
// and limit L.
func NewRateLimitGlobal(window time.Duration, limit int) *RateLimitGlobal {
	return &RateLimitGlobal{window: window, limit: limit, now: time.Now}
}

func (*RateLimitGlobal) Name() string { return "rate-limit-global" }

func (r *RateLimitGlobal) Check(_ context.Context, _ *mail.Message) (bool, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	allow, n, lim, tEnd := checkWindow(&r.counter, r.now(), r.window, r.limit)
	if allow {
		return true, "", nil
	}
	return false, fmt.Sprintf("global rate limit exceeded (%d/%d, window ends %s)", n, lim, tEnd.Format(time.RFC3339)), nil
}

// keyFunc extracts the rate-limit key (sender address or domain) from
// a message.
type keyFunc func(*mail.Message) string

func senderKey(msg *mail.Message) string { return msg.From.Bare() }
func domainKey(msg *mail.Message) string { return msg.From.Domain }

// RateLimitKeyed enforces an independent counter per distinct key
// (sender address or sender domain), purging expired entries on every
// check (spec.md §4.D rules 5-6). maxEntries, if positive, bounds the
// table by evicting the entries closest to expiry once the bound is
// exceeded — the Open Question of unbounded table growth under open
// workloads, resolved here with an LRU-by-expiry cap.
type RateLimitKeyed struct {
	name       string
	window     time.Duration
	limit      int
	key        keyFunc
	maxEntries int
	now        func() time.Time

	mu        sync.Mutex
	table     map[string]*windowCounter
	nextPurge time.Time
}

// NewRateLimitPerSender constructs a per-sender-address rate-limit
// rule.
func NewRateLimitPerSender(window time.Duration, limit, maxEntries int) *RateLimitKeyed {
	return newRateLimitKeyed("rate-limit-per-sender", window, limit, maxEntries, senderKey)
}

// NewRateLimitPerDomain constructs a per-sender-domain rate-limit
// rule.
func NewRateLimitPerDomain(window time.Duration, limit, maxEntries int) *RateLimitKeyed {
	return newRateLimitKeyed("rate-limit-per-domain", window, limit, maxEntries, domainKey)
}

func newRateLimitKeyed(name string, window time.Duration, limit, maxEntries int, key keyFunc) *RateLimitKeyed {
	return &RateLimitKeyed{
		name:       name,
		window:     window,
		limit:      limit,
		key:        key,
		maxEntries: maxEntries,
		now:        time.Now,
		table:      make(map[string]*windowCounter),
	}
}

func (r *RateLimitKeyed) Name() string { return r.name }

func (r *RateLimitKeyed) Check(_ context.Context, msg *mail.Message) (bool, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.now()
	r.purgeLocked(t)

	k := r.key(msg)
	counter, ok := r.table[k]
	if !ok {
		counter = &windowCounter{}
		r.table[k] = counter
	}

	allow, n, lim, tEnd := checkWindow(counter, t, r.window, r.limit)
	if !ok {
		r.evictIfOverCapLocked()
	}
	if allow {
		return true, "", nil
	}
	return false, fmt.Sprintf("%s rate limit exceeded for %q (%d/%d, window ends %s)", r.name, k, n, lim, tEnd.Format(time.RFC3339)), nil
}

// purgeLocked removes entries whose window has already expired, run
// at most once per window per spec.md §4.D rule 5. Caller holds r.mu.
func (r *RateLimitKeyed) purgeLocked(t time.Time) {
	if !t.After(r.nextPurge) {
		return
	}
	for k, c := range r.table {
		if c.tEnd.Before(t) {
			delete(r.table, k)
		}
	}
	r.nextPurge = t.Add(r.window)
}

// evictIfOverCapLocked removes the entries nearest expiry until the
// table is back under maxEntries. Caller holds r.mu.
func (r *RateLimitKeyed) evictIfOverCapLocked() {
	if r.maxEntries <= 0 || len(r.table) <= r.maxEntries {
		return
	}
	for len(r.table) > r.maxEntries {
		var oldestKey string
		var oldestEnd time.Time
		first := true
		for k, c := range r.table {
			if first || c.tEnd.Before(oldestEnd) {
				oldestKey, oldestEnd, first = k, c.tEnd, false
			}
		}
		delete(r.table, oldestKey)
	}
}

// Len reports the current table size, for tests asserting the bound
// from spec.md §8.
func (r *RateLimitKeyed) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table)
}
