package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a deterministic token bucket refilling at an integer rate of
// tokens per second. It is used to cap inbound signaling message rates per
// connection.
//
// Accounting is done in nanotokens (1 token = 1e9 nanotokens) so refill math
// stays in integers; a rate of R tokens/sec refills R nanotokens per
// nanosecond elapsed.
type TokenBucket struct {
	mu sync.Mutex

	clock Clock

	capacity int64 // tokens
	rate     int64 // tokens/sec

	available int64 // nanotokens
	last      time.Time
}

const nanosPerToken = int64(time.Second)

func NewTokenBucket(clock Clock, capacity, rate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacity < 0 {
		capacity = 0
	}
	if rate < 0 {
		rate = 0
	}
	return &TokenBucket{
		clock:     clock,
		capacity:  capacity,
		rate:      rate,
		available: capacity * nanosPerToken,
		last:      clock.Now(),
	}
}

// Allow consumes n tokens if available. n <= 0 always succeeds.
func (b *TokenBucket) Allow(n int64) bool {
	if n <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	cost := n * nanosPerToken
	if b.available < cost {
		return false
	}
	b.available -= cost
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	if now.Before(b.last) {
		// Clock went backwards; re-anchor without refilling.
		b.last = now
		return
	}
	elapsed := now.Sub(b.last)
	b.last = now

	if elapsed <= 0 || b.rate <= 0 || b.capacity <= 0 {
		return
	}

	max := b.capacity * nanosPerToken
	need := max - b.available
	if need <= 0 {
		b.available = max
		return
	}

	// elapsed*rate can overflow for huge gaps; if the gap is long enough to
	// fill the bucket, just clamp.
	if elapsed.Nanoseconds() >= need/b.rate {
		b.available = max
		return
	}
	b.available += elapsed.Nanoseconds() * b.rate
}
