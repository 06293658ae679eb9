// Package safety wraps a single adapter crawl attempt with pre-flight
// checks, timing, and per-site health accounting (spec.md §4.7). It is
// the sole admission authority for a crawl: nothing invokes an adapter's
// Crawl directly except through this wrapper.
//
// Grounded on the original Python production_safety_crawler.py, and on
// the other_examples rohmanhakim-docs-crawler scheduler's "one caller
// decides whether a unit of work runs" idiom. The latency-ring snapshot
// follows the teacher's resilience.Bulkhead.Metrics() convention of a
// plain, lock-protected struct snapshot rather than a histogram library.
package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flightcrawl/core/flightmodel"
	"github.com/flightcrawl/core/ratelimit"
	"github.com/flightcrawl/core/resilience"
)

const (
	maxAdmissionWait = 5 * time.Second
	latencyCapacity  = 100
)

// URLValidator is the external collaborator validating an adapter's
// target URLs before a crawl attempt (spec.md §4.7 step 2). The crawler
// core ships no concrete implementation; callers wire one in (DNS
// resolution, an allowlist, or a no-op for trusted static configuration).
type URLValidator interface {
	Validate(ctx context.Context, urls ...string) error
}

// NoopURLValidator always succeeds; used when no external validator is
// configured.
type NoopURLValidator struct{}

func (NoopURLValidator) Validate(context.Context, ...string) error { return nil }

// Crawler is the function signature of an adapter's crawl operation,
// satisfied by (*adapter.Template).Crawl.
type Crawler func(ctx context.Context, params flightmodel.SearchParams) ([]flightmodel.FlightRecord, error)

// siteHealth tracks one site's consecutive-failure/blocked-until state
// and its last 100 latencies.
type siteHealth struct {
	mu                sync.Mutex
	consecutiveFail   int
	lastFailure       time.Time
	blockedUntil      time.Time
	totalAttempts     int
	totalSuccesses    int
	totalFailures     int
	latencies         []time.Duration
}

func (h *siteHealth) recordLatency(d time.Duration) {
	h.latencies = append(h.latencies, d)
	if len(h.latencies) > latencyCapacity {
		h.latencies = h.latencies[len(h.latencies)-latencyCapacity:]
	}
}

// Snapshot is a read-only view of one site's health accounting.
type Snapshot struct {
	TotalAttempts   int
	TotalSuccesses  int
	TotalFailures   int
	ConsecutiveFail int
	Blocked         bool
	BlockedUntil    time.Time
	Latencies       []time.Duration
}

// SafetyCrawler wraps a single (adapter, searchParams) attempt per spec.md
// §4.7's six-step pre-flight/timing/health-accounting wrapper.
type SafetyCrawler struct {
	mu          sync.Mutex
	sites       map[string]*siteHealth
	validator   URLValidator
	rateLimiter *ratelimit.Limiter
	bulkhead    *resilience.Bulkhead
	maxRetries  int
	cooldown    time.Duration
	now         func() time.Time
}

// Option configures a SafetyCrawler at construction time.
type Option func(*SafetyCrawler)

// WithURLValidator overrides the default no-op URL validator.
func WithURLValidator(v URLValidator) Option {
	return func(s *SafetyCrawler) { s.validator = v }
}

// WithMaxRetries overrides the default consecutive-failure cooldown trigger (3).
func WithMaxRetries(n int) Option {
	return func(s *SafetyCrawler) { s.maxRetries = n }
}

// WithCooldown overrides the default 5-minute block duration.
func WithCooldown(d time.Duration) Option {
	return func(s *SafetyCrawler) { s.cooldown = d }
}

// WithConcurrencyLimit bounds how many adapter crawls (across all sites)
// may run at once, independent of each site's own rate limit; useful to
// cap total outbound browser/HTTP load on the crawler process itself.
func WithConcurrencyLimit(maxConcurrent int, maxWait time.Duration) Option {
	return func(s *SafetyCrawler) {
		s.bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: maxConcurrent,
			MaxWait:       maxWait,
		})
	}
}

// New constructs a SafetyCrawler wired to a shared rate limiter.
func New(rateLimiter *ratelimit.Limiter, opts ...Option) *SafetyCrawler {
	s := &SafetyCrawler{
		sites:       make(map[string]*siteHealth),
		validator:   NoopURLValidator{},
		rateLimiter: rateLimiter,
		maxRetries:  3,
		cooldown:    5 * time.Minute,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SafetyCrawler) healthFor(site string) *siteHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sites[site]
	if !ok {
		h = &siteHealth{}
		s.sites[site] = h
	}
	return h
}

// Attempt runs one crawl attempt for site, applying the six-step
// pre-flight/timing/health-accounting wrapper. crawlURLs are the
// adapter's declared target URLs, validated before the attempt.
func (s *SafetyCrawler) Attempt(ctx context.Context, site string, crawlURLs []string, params flightmodel.SearchParams, crawl Crawler) ([]flightmodel.FlightRecord, error) {
	h := s.healthFor(site)
	now := s.now()

	// Step 1: blocked-site check.
	h.mu.Lock()
	if !h.blockedUntil.IsZero() {
		if now.Before(h.blockedUntil) {
			h.mu.Unlock()
			return nil, fmt.Errorf("safety: %s is blocked until %s", site, h.blockedUntil)
		}
		h.blockedUntil = time.Time{}
	}
	h.mu.Unlock()

	// Step 2: URL validation.
	if err := s.validator.Validate(ctx, crawlURLs...); err != nil {
		return nil, fmt.Errorf("safety: url validation failed for %s: %w", site, err)
	}

	// Step 3: cooldown check.
	h.mu.Lock()
	if h.consecutiveFail >= s.maxRetries && now.Sub(h.lastFailure) < s.cooldown {
		h.mu.Unlock()
		return nil, fmt.Errorf("safety: %s in cooldown after %d consecutive failures", site, h.consecutiveFail)
	}
	h.mu.Unlock()

	// Step 4: rate limiter admission.
	if s.rateLimiter != nil {
		allowed, waitMillis, reason := s.rateLimiter.CanMakeRequest(site)
		if !allowed {
			wait := time.Duration(waitMillis) * time.Millisecond
			if wait > maxAdmissionWait {
				return nil, fmt.Errorf("safety: %s rate limited (%s), wait %s exceeds admission cap", site, reason, wait)
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	// Step 5: invoke the adapter, bounded by the process-wide concurrency
	// limit when one is configured.
	if s.bulkhead != nil {
		if err := s.bulkhead.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("safety: %s: %w", site, err)
		}
		defer s.bulkhead.Release()
	}

	start := s.now()
	records, err := crawl(ctx, params)
	latency := s.now().Sub(start)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalAttempts++
	h.recordLatency(latency)

	if err == nil && len(records) == 0 {
		err = fmt.Errorf("safety: %s returned no flights", site)
	}

	if err != nil {
		// Step 6: on failure, update health and possibly block the site.
		h.totalFailures++
		h.consecutiveFail++
		h.lastFailure = now
		if h.consecutiveFail >= s.maxRetries {
			h.blockedUntil = now.Add(s.cooldown)
		}
		return nil, err
	}

	h.totalSuccesses++
	h.consecutiveFail = 0
	return records, nil
}

// Snapshot returns a read-only view of site's health accounting.
func (s *SafetyCrawler) Snapshot(site string) Snapshot {
	h := s.healthFor(site)
	h.mu.Lock()
	defer h.mu.Unlock()
	latencies := make([]time.Duration, len(h.latencies))
	copy(latencies, h.latencies)
	return Snapshot{
		TotalAttempts:   h.totalAttempts,
		TotalSuccesses:  h.totalSuccesses,
		TotalFailures:   h.totalFailures,
		ConsecutiveFail: h.consecutiveFail,
		Blocked:         !h.blockedUntil.IsZero() && s.now().Before(h.blockedUntil),
		BlockedUntil:    h.blockedUntil,
		Latencies:       latencies,
	}
}
