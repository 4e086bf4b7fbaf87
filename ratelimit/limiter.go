// Package ratelimit throttles outbound delivery per destination host.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a set of token buckets keyed by destination host.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   float64
	lastFill time.Time
	rate     float64 // tokens per second, also the burst size
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
	}
}

// Allow takes one token from the bucket for key. A perSecond of 0 or less
// means unlimited.
func (l *Limiter) Allow(key string, perSecond int) bool {
	if perSecond <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketFor(key, float64(perSecond))
	b.refill(time.Now())

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RetryAfter returns how long until the bucket for key holds a whole token.
// It is zero when a call to Allow would succeed now.
func (l *Limiter) RetryAfter(key string, perSecond int) time.Duration {
	if perSecond <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketFor(key, float64(perSecond))
	b.refill(time.Now())

	if b.tokens >= 1 {
		return 0
	}
	return time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}

// Reset clears the state for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

func (l *Limiter) bucketFor(key string, rate float64) *bucket {
	b, ok := l.buckets[key]
	if !ok || b.rate != rate {
		b = &bucket{
			tokens:   rate, // start full
			lastFill: time.Now(),
			rate:     rate,
		}
		l.buckets[key] = b
	}
	return b
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * b.rate
	if b.tokens > b.rate {
		b.tokens = b.rate
	}
	b.lastFill = now
}
