// Package ratelimit enforces per-operation sliding-window request limits.
// It is the one piece of cross-request mutable state in the gateway outside
// the capability backends, and it locks internally.
package ratelimit

import (
	"sync"
	"time"

	"github.com/ppiankov/toolgate/internal/model"
)

// Limit caps one operation. Zero values mean unlimited.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

func (l Limit) active() bool {
	return l.MaxRequests > 0 && l.Window > 0
}

// Limiter tracks request timestamps per operation. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	limits map[model.Operation]Limit
	hits   map[model.Operation][]time.Time
	now    func() time.Time
}

// New creates a Limiter. A nil or empty limit map allows everything.
func New(limits map[model.Operation]Limit) *Limiter {
	return &Limiter{
		limits: limits,
		hits:   make(map[model.Operation][]time.Time),
		now:    time.Now,
	}
}

// SetLimits swaps the limit table, keeping recorded hits. Used on policy
// reload.
func (l *Limiter) SetLimits(limits map[model.Operation]Limit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits = limits
}

// Allow records one request for op and reports whether it is within the
// limit. When the limit is exceeded the request is not recorded and
// retryAfter tells the caller how long until the oldest hit leaves the
// window.
func (l *Limiter) Allow(op model.Operation) (retryAfter time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.limits[op]
	if !limit.active() {
		return 0, true
	}

	now := l.now()
	cutoff := now.Add(-limit.Window)

	kept := l.hits[op][:0]
	for _, ts := range l.hits[op] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.hits[op] = kept

	if len(kept) >= limit.MaxRequests {
		retry := kept[0].Add(limit.Window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return retry, false
	}

	l.hits[op] = append(kept, now)
	return 0, true
}
