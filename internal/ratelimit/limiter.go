// Package ratelimit throttles outbound frame bytes to a fixed budget per
// one-second window. Unlike a token bucket it never fractionally delays a
// send: a frame either fits in the current window or the sender sleeps out
// the remainder of the window and starts a fresh one.
package ratelimit

import (
	"time"
)

const window = time.Second

// Limiter enforces a bytes-per-second budget over discrete windows. A nil
// Limiter is valid and never blocks. Limiter is not safe for concurrent use;
// each sender owns its own.
type Limiter struct {
	limit         int
	windowStart   time.Time
	bytesInWindow int

	// Injectable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a limiter allowing bytesPerSecond frame bytes per window.
// A non-positive limit returns nil, which disables throttling.
func New(bytesPerSecond int) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return &Limiter{
		limit: bytesPerSecond,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Reserve accounts n bytes against the current window, blocking first when
// the window budget is exhausted. Frames are accounted whole: a frame larger
// than the remaining budget waits for the next window even if some budget
// remains, and a frame larger than the limit itself still goes out after at
// most one full window wait.
func (l *Limiter) Reserve(n int) {
	if l == nil || n <= 0 {
		return
	}

	now := l.now()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= window {
		l.windowStart = now
		l.bytesInWindow = 0
	}

	if l.bytesInWindow+n > l.limit {
		if remaining := window - now.Sub(l.windowStart); remaining > 0 {
			l.sleep(remaining)
		}
		l.windowStart = l.now()
		l.bytesInWindow = 0
	}

	l.bytesInWindow += n
}

// Limit returns the configured bytes-per-second budget, or 0 when disabled.
func (l *Limiter) Limit() int {
	if l == nil {
		return 0
	}
	return l.limit
}
