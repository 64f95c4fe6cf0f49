package router

import (
	"sync"
	"time"
)

const (
	eventsPerMinute = 100
	staleAfter      = 5 * time.Minute
)

// RateLimiter caps inbound events per connection with a minute window so one
// misbehaving client cannot starve the event stream for its session.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimit
}

type clientLimit struct {
	eventCount  int
	windowStart time.Time
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimit),
	}
}

// Allow reports whether a connection may submit another event.
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.clients[connID]
	if !exists {
		rl.clients[connID] = &clientLimit{eventCount: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= time.Minute {
		limit.eventCount = 1
		limit.windowStart = now
		return true
	}

	if limit.eventCount >= eventsPerMinute {
		return false
	}

	limit.eventCount++
	return true
}

// Forget drops a connection's limit state on disconnect.
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.clients, connID)
}

// Cleanup removes entries idle longer than the stale window.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for connID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > staleAfter {
			delete(rl.clients, connID)
		}
	}
}
