package gateway

import (
	"sync"
	"time"
)

// Limiter is a fixed-window request counter. The window starts with the
// first request after the previous window expired; once limit requests were
// allowed, Allow reports false until the window elapses.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	count   int
	resetAt time.Time
	now     func() time.Time
}

// NewLimiter returns a limiter allowing limit requests per window.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow consumes one request from the budget if any is left.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll()
	if l.count >= l.limit {
		return false
	}
	l.count++
	return true
}

// Remaining returns the requests left in the current window.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll()
	return l.limit - l.count
}

// ResetAt returns when the current window ends.
func (l *Limiter) ResetAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll()
	return l.resetAt
}

// roll starts a new window when the current one has expired. Caller holds mu.
func (l *Limiter) roll() {
	now := l.now()
	if l.resetAt.IsZero() || !now.Before(l.resetAt) {
		l.count = 0
		l.resetAt = now.Add(l.window)
	}
}
