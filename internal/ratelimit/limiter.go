package ratelimit

import (
	"sync"
	"time"
)

// Policy names a fixed-window budget for a group of endpoints.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Standard policies, tightest first. Auth endpoints get the smallest budget
// since a single abuser can burn real money in email sends.
var (
	PolicyAuth    = Policy{Name: "auth", Limit: 5, Window: 15 * time.Minute}
	PolicyPayment = Policy{Name: "payment", Limit: 10, Window: time.Minute}
	PolicyAPI     = Policy{Name: "api", Limit: 100, Window: time.Minute}
	PolicyPublic  = Policy{Name: "public", Limit: 300, Window: time.Minute}
)

// Decision is the outcome of one Allow call, carrying everything the HTTP
// layer needs for the X-RateLimit-* headers.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is an in-memory fixed-window counter keyed by caller identity.
// State is process-local: with several replicas each enforces its own budget,
// which overshoots by at most the replica count and needs no network hop.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewLimiter returns an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{windows: make(map[string]*window), now: time.Now}
}

// Allow consumes one unit of the caller's budget under the given policy.
// The first request of a window always succeeds and opens the window.
func (l *Limiter) Allow(key string, policy Policy) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket := policy.Name + ":" + key

	w, ok := l.windows[bucket]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 0, resetAt: now.Add(policy.Window)}
		l.windows[bucket] = w
	}

	if w.count >= policy.Limit {
		return Decision{
			Allowed:    false,
			Limit:      policy.Limit,
			Remaining:  0,
			ResetAt:    w.resetAt,
			RetryAfter: w.resetAt.Sub(now),
		}
	}

	w.count++
	return Decision{
		Allowed:   true,
		Limit:     policy.Limit,
		Remaining: policy.Limit - w.count,
		ResetAt:   w.resetAt,
	}
}

// Sweep drops windows that have already reset. Run periodically so idle
// callers don't accumulate forever.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of live windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
