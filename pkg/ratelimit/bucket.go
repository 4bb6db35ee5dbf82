// Package ratelimit implements the token-bucket and bandwidth-tracking
// primitives of spec §4.1 (C1): rate limiting for the write path and its
// derived components (QoS classes).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/dirkpetersen/claudefs/internal/clock"
	"gopkg.in/spacemonkeygo/monkit.v2"
)

var mon = monkit.Package()

// Unlimited is used as a TokenBucket rate to mean "no limit".
const Unlimited = 0

// TokenBucket is a classic token bucket: tokens refill linearly with wall
// time and are drained by consumption. Per spec §4.1, the first call
// records `now` without refilling so the caller can seed the clock.
type TokenBucket struct {
	clock clock.Source

	mu         sync.Mutex
	rate       float64 // tokens per second; Unlimited (0) means unbounded
	capacity   float64
	tokens     float64
	lastRefill time.Time
	seeded     bool
}

// NewTokenBucket creates a bucket with the given refill rate (tokens/sec)
// and capacity. The bucket starts full.
func NewTokenBucket(src clock.Source, rate, capacity float64) *TokenBucket {
	return &TokenBucket{
		clock:    src,
		rate:     rate,
		capacity: capacity,
		tokens:   capacity,
	}
}

// refill must be called with mu held.
func (b *TokenBucket) refill(now time.Time) {
	if !b.seeded {
		b.lastRefill = now
		b.seeded = true
		return
	}
	if b.rate == Unlimited {
		b.tokens = b.capacity
		b.lastRefill = now
		return
	}
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// TryConsume attempts to take n tokens immediately, returning false
// without side effects if insufficient tokens are available.
func (b *TokenBucket) TryConsume(n float64) bool {
	defer mon.Task()(nil)(nil)
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	if b.rate == Unlimited || b.tokens >= n {
		if b.rate != Unlimited {
			b.tokens -= n
		}
		return true
	}
	return false
}

// Acquire blocks (cooperatively, via ctx) until n tokens are available or
// ctx is cancelled. It never leaks a deduction on the cancellation path:
// tokens are only removed on the success branch, matching the spec §5
// cancellation contract.
func (b *TokenBucket) Acquire(ctx context.Context, n float64) error {
	defer mon.Task()(&ctx)(nil)

	for {
		if b.TryConsume(n) {
			return nil
		}

		wait := b.waitFor(n)
		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// waitFor estimates how long until n tokens will be available, given the
// current deficit and refill rate. Returns 0 if already satisfiable.
func (b *TokenBucket) waitFor(n float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(b.clock.Now())
	if b.rate == Unlimited || b.tokens >= n {
		return 0
	}
	deficit := n - b.tokens
	secs := deficit / b.rate
	return time.Duration(secs * float64(time.Second))
}

// Tokens returns the current token count (after a refill pass), for
// observability.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(b.clock.Now())
	return b.tokens
}

// Capacity returns the bucket's configured capacity.
func (b *TokenBucket) Capacity() float64 {
	return b.capacity
}

// Rate returns the bucket's configured refill rate.
func (b *TokenBucket) Rate() float64 {
	return b.rate
}

// BandwidthTracker accumulates bytes observed in a sliding window,
// reporting an approximate current bytes-per-second rate. It is the
// "bandwidth tracker" half of C1, estimating throughput independent of
// token-bucket admission; no other package in this repository uses it.
type BandwidthTracker struct {
	clock  clock.Source
	window time.Duration

	mu      sync.Mutex
	samples []sample
}

type sample struct {
	at    time.Time
	bytes uint64
}

// NewBandwidthTracker returns a tracker that retains samples for window.
func NewBandwidthTracker(src clock.Source, window time.Duration) *BandwidthTracker {
	return &BandwidthTracker{clock: src, window: window}
}

// Record adds an observation of n bytes transferred now.
func (t *BandwidthTracker) Record(n uint64) {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append(t.samples, sample{at: now, bytes: n})
	t.evict(now)
}

// evict must be called with mu held.
func (t *BandwidthTracker) evict(now time.Time) {
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(t.samples) && t.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.samples = t.samples[i:]
	}
}

// BytesPerSecond returns the average throughput over the retained window.
func (t *BandwidthTracker) BytesPerSecond() float64 {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evict(now)

	if len(t.samples) == 0 {
		return 0
	}
	var total uint64
	for _, s := range t.samples {
		total += s.bytes
	}
	span := now.Sub(t.samples[0].at).Seconds()
	if span <= 0 {
		span = t.window.Seconds()
	}
	if span <= 0 {
		return float64(total)
	}
	return float64(total) / span
}
