// Package ratelimit keeps one token bucket per key (client IP, reset
// identifier) and forgets buckets that have been idle for a while.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Keyed is a set of token buckets sharing one rate and burst.
type Keyed struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
}

// New returns buckets refilling at r tokens per second with the given burst.
func New(r rate.Limit, burst int) *Keyed {
	return &Keyed{
		limit:    r,
		burst:    burst,
		visitors: make(map[string]*visitor),
	}
}

// NewCooldown allows one event per key every interval.
func NewCooldown(interval time.Duration) *Keyed {
	return New(rate.Every(interval), 1)
}

func (k *Keyed) get(key string, now time.Time) *rate.Limiter {
	v, exists := k.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Allow reports whether an event for key may happen now.
func (k *Keyed) Allow(key string) bool {
	return k.AllowAt(key, time.Now())
}

// AllowAt is Allow evaluated at an explicit time.
func (k *Keyed) AllowAt(key string, now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.get(key, now).AllowN(now, 1)
}

// NextAllowedAt returns the earliest time an event for key would be allowed,
// without consuming a token.
func (k *Keyed) NextAllowedAt(key string, now time.Time) time.Time {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, exists := k.visitors[key]
	if !exists {
		return now
	}
	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return now
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return now.Add(delay)
}

// Sweep drops buckets not touched since before now-idle and returns how many went.
func (k *Keyed) Sweep(now time.Time, idle time.Duration) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	removed := 0
	for key, v := range k.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(k.visitors, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.visitors)
}
