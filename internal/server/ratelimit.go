package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter counts requests per client in fixed minute and day windows.
type RateLimiter struct {
	mu sync.Mutex

	perMinute int
	perDay    int
	clients   map[string]*usage
	now       func() time.Time
}

type usage struct {
	minuteStart time.Time
	minuteCount int
	dayStart    time.Time
	dayCount    int
}

// NewRateLimiter returns a limiter; a zero limit disables that window.
func NewRateLimiter(perMinute, perDay int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		perDay:    perDay,
		clients:   make(map[string]*usage),
		now:       time.Now,
	}
}

// Allow records a request from client, or returns a *RateLimitError when a
// window is exhausted. Rejected requests are not counted.
func (rl *RateLimiter) Allow(client string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u, ok := rl.clients[client]
	if !ok {
		u = &usage{minuteStart: now, dayStart: now}
		rl.clients[client] = u
	}
	if now.Sub(u.minuteStart) >= time.Minute {
		u.minuteStart, u.minuteCount = now, 0
	}
	if now.Sub(u.dayStart) >= 24*time.Hour {
		u.dayStart, u.dayCount = now, 0
	}

	if rl.perMinute > 0 && u.minuteCount >= rl.perMinute {
		return &RateLimitError{Window: "minute", Limit: rl.perMinute, RetryAfter: u.minuteStart.Add(time.Minute).Sub(now)}
	}
	if rl.perDay > 0 && u.dayCount >= rl.perDay {
		return &RateLimitError{Window: "day", Limit: rl.perDay, RetryAfter: u.dayStart.Add(24 * time.Hour).Sub(now)}
	}
	u.minuteCount++
	u.dayCount++
	return nil
}

// RateLimitError reports an exhausted window.
type RateLimitError struct {
	Window     string // "minute" or "day"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Window, e.Limit, e.RetryAfter)
}
