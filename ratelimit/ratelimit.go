// Package ratelimit provides per-site admission control combining a token
// bucket with a sliding-window cap and a post-failure cooldown window
// (spec.md §4.2). Admission decisions are non-blocking; callers decide
// whether to sleep the reported wait time and retry.
package ratelimit

import (
	"sync"
	"time"
)

// Config is the per-site rate-limit configuration.
type Config struct {
	// RequestsPerSecond is the token bucket's refill rate.
	RequestsPerSecond float64
	// BurstLimit is the token bucket's capacity.
	BurstLimit int
	// CooldownPeriod is the forced pause applied after a rate-limit failure.
	CooldownPeriod time.Duration
	// WindowSize is the sliding window used for the per-minute cap.
	// Default: 1 minute.
	WindowSize time.Duration
}

func (c *Config) applyDefaults() {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 1
	}
	if c.BurstLimit <= 0 {
		c.BurstLimit = 1
	}
	if c.WindowSize <= 0 {
		c.WindowSize = time.Minute
	}
}

// Reason explains why admission was denied.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonNoTokens      Reason = "no_tokens"
	ReasonWindowCap     Reason = "sliding_window_cap"
	ReasonCooldown      Reason = "cooldown"
)

// bucket is the per-site state: token bucket, sliding window, cooldown.
type bucket struct {
	mu          sync.Mutex
	cfg         Config
	tokens      float64
	lastRefill  time.Time
	window      []time.Time // timestamps of admitted requests within WindowSize
	cooldownEnd time.Time
}

func newBucket(cfg Config) *bucket {
	cfg.applyDefaults()
	return &bucket{
		cfg:        cfg,
		tokens:     float64(cfg.BurstLimit),
		lastRefill: time.Now(),
	}
}

func (b *bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed < 0 {
		elapsed = 0
	}
	b.lastRefill = now
	b.tokens += elapsed.Seconds() * b.cfg.RequestsPerSecond
	if b.tokens > float64(b.cfg.BurstLimit) {
		b.tokens = float64(b.cfg.BurstLimit)
	}
}

// pruneWindowLocked drops timestamps older than WindowSize.
func (b *bucket) pruneWindowLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.WindowSize)
	i := 0
	for i < len(b.window) && b.window[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.window = b.window[i:]
	}
}

// windowCapacity is the maximum admissions allowed per WindowSize, derived
// from the sustained rate: R*windowSeconds, floored to at least BurstLimit
// so a legitimate burst is never rejected by the window alone.
func (b *bucket) windowCapacityLocked() int {
	cap := int(b.cfg.RequestsPerSecond * b.cfg.WindowSize.Seconds())
	if cap < b.cfg.BurstLimit {
		cap = b.cfg.BurstLimit
	}
	return cap
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Reason    Reason
	WaitMillis int64
}

// canMakeRequest evaluates admission for one site's bucket at time now.
func (b *bucket) canMakeRequest(now time.Time) Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Before(b.cooldownEnd) {
		return Decision{
			Allowed:    false,
			Reason:     ReasonCooldown,
			WaitMillis: b.cooldownEnd.Sub(now).Milliseconds(),
		}
	}

	b.refillLocked(now)
	b.pruneWindowLocked(now)

	if b.tokens < 1 {
		tokensNeeded := 1 - b.tokens
		wait := time.Duration(tokensNeeded / b.cfg.RequestsPerSecond * float64(time.Second))
		return Decision{Allowed: false, Reason: ReasonNoTokens, WaitMillis: wait.Milliseconds()}
	}

	if len(b.window) >= b.windowCapacityLocked() {
		oldest := b.window[0]
		wait := b.cfg.WindowSize - now.Sub(oldest)
		if wait < 0 {
			wait = 0
		}
		return Decision{Allowed: false, Reason: ReasonWindowCap, WaitMillis: wait.Milliseconds()}
	}

	// Admission consumes a token immediately: canMakeRequest is the only
	// call some callers make before issuing the request, so the bucket
	// must reflect the reservation right away rather than waiting for a
	// separate confirmation call.
	b.tokens -= 1
	b.window = append(b.window, now)
	return Decision{Allowed: true}
}

// recordFailure starts (or extends) the cooldown window following a
// rate-limit failure attributed to this site.
func (b *bucket) recordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.CooldownPeriod > 0 {
		end := now.Add(b.cfg.CooldownPeriod)
		if end.After(b.cooldownEnd) {
			b.cooldownEnd = end
		}
	}
}

// Limiter is the process-wide, per-site rate limiter. It is shared by all
// adapters and mediates access with internal per-site locking.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	configs map[string]Config
	now     func() time.Time
}

// New creates an empty Limiter. Sites are configured lazily via Configure,
// or on first use with a default Config.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		configs: make(map[string]Config),
		now:     time.Now,
	}
}

// Configure sets (or replaces) the rate-limit configuration for a site.
// Existing bucket state is preserved across reconfiguration.
func (l *Limiter) Configure(site string, cfg Config) {
	cfg.applyDefaults()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[site] = cfg
	if b, ok := l.buckets[site]; ok {
		b.mu.Lock()
		b.cfg = cfg
		b.mu.Unlock()
		return
	}
	l.buckets[site] = newBucket(cfg)
}

func (l *Limiter) bucketFor(site string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[site]; ok {
		return b
	}
	cfg := l.configs[site]
	b := newBucket(cfg)
	l.buckets[site] = b
	return b
}

// CanMakeRequest is the non-blocking admission check from spec.md §6:
// CanMakeRequest(site) → (allowed, waitMillis, reason).
func (l *Limiter) CanMakeRequest(site string) (allowed bool, waitMillis int64, reason Reason) {
	d := l.bucketFor(site).canMakeRequest(l.now())
	return d.Allowed, d.WaitMillis, d.Reason
}

// RecordRequest reports the outcome of a request the caller was admitted
// to make. durationMs is advisory (used by observability); success=false
// with a rate-limit-attributed failure starts the site's cooldown. Token
// and sliding-window bookkeeping already happened in CanMakeRequest.
func (l *Limiter) RecordRequest(site string, durationMs int64, success bool, rateLimited bool) {
	if success || !rateLimited {
		return
	}
	l.bucketFor(site).recordFailure(l.now())
}

// Tokens reports the current token count for a site (observability only).
func (l *Limiter) Tokens(site string) float64 {
	b := l.bucketFor(site)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(l.now())
	return b.tokens
}

// Reset clears a site's bucket state back to full capacity, no cooldown.
func (l *Limiter) Reset(site string) {
	b := l.bucketFor(site)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = float64(b.cfg.BurstLimit)
	b.lastRefill = l.now()
	b.window = nil
	b.cooldownEnd = time.Time{}
}
