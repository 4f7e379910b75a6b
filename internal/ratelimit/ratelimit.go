package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a simple fixed-window rate limiter for a single entity.
type Limiter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	rate        int
	window      time.Duration
}

// New creates a Limiter that allows rate requests per window.
func New(rate int, window time.Duration) *Limiter {
	return &Limiter{
		rate:        rate,
		window:      window,
		windowStart: time.Now(),
	}
}

// Allow returns true if the request is within the rate limit.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if now.Sub(l.windowStart) > l.window {
		l.count = 0
		l.windowStart = now
	}
	l.count++
	return l.count <= l.rate
}

// Registry hands out one Limiter per key. Used to rate-limit polling
// endpoints per agent; entries for agents that stop polling are pruned
// lazily once they go quiet for several windows.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*registryEntry
	rate     int
	window   time.Duration
}

type registryEntry struct {
	limiter  *Limiter
	lastSeen time.Time
}

// NewRegistry creates a Registry whose per-key limiters allow rate requests
// per window.
func NewRegistry(rate int, window time.Duration) *Registry {
	return &Registry{
		limiters: make(map[string]*registryEntry),
		rate:     rate,
		window:   window,
	}
}

// Allow reports whether the request for the given key is within its limit.
func (r *Registry) Allow(key string) bool {
	r.mu.Lock()
	now := time.Now()
	e, ok := r.limiters[key]
	if !ok {
		e = &registryEntry{limiter: New(r.rate, r.window)}
		r.limiters[key] = e
	}
	e.lastSeen = now
	if len(r.limiters) > 1024 {
		r.prune(now)
	}
	r.mu.Unlock()

	return e.limiter.Allow()
}

// prune drops entries idle for more than ten windows. Caller holds r.mu.
func (r *Registry) prune(now time.Time) {
	cutoff := now.Add(-10 * r.window)
	for key, e := range r.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(r.limiters, key)
		}
	}
}
