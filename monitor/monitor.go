// Package monitor implements the scheduler that drives each active
// adapter's long-running crawl loop and the cross-adapter health
// aggregation those loops feed (spec.md §4.8).
//
// Grounded on health.Aggregator's parallel-checks-with-timeout shape for
// OverallHealth's three-way classifier, and on original_source's
// monitoring.py/unified_monitoring.py for the per-domain counters and
// memory-sampling loop. Memory sampling calls runtime.ReadMemStats
// directly; the samples are not exported as OTel instruments.
package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/flightcrawl/core/breaker"
	"github.com/flightcrawl/core/flightmodel"
	"github.com/flightcrawl/core/safety"
)

// Status is the aggregate three-way health classification (spec.md §4.8).
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const (
	defaultMemorySampleCap = 500
	healthySuccessRate     = 0.8
)

// DomainCounters tracks one adapter's crawl outcomes.
type DomainCounters struct {
	mu               sync.Mutex
	Total            int
	Successes        int
	Failures         int
	TotalDuration    time.Duration
	MinDuration      time.Duration
	MaxDuration      time.Duration
	LastRequest      time.Time
	FlightsExtracted int
}

func (c *DomainCounters) record(success bool, d time.Duration, flights int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Total++
	if success {
		c.Successes++
		c.FlightsExtracted += flights
	} else {
		c.Failures++
	}
	c.TotalDuration += d
	if c.MinDuration == 0 || d < c.MinDuration {
		c.MinDuration = d
	}
	if d > c.MaxDuration {
		c.MaxDuration = d
	}
	c.LastRequest = now
}

// DomainSnapshot is a read-only view of DomainCounters.
type DomainSnapshot struct {
	Total, Successes, Failures int
	TotalDuration, MinDuration, MaxDuration time.Duration
	LastRequest      time.Time
	FlightsExtracted int
}

func (c *DomainCounters) snapshot() DomainSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return DomainSnapshot{
		Total: c.Total, Successes: c.Successes, Failures: c.Failures,
		TotalDuration: c.TotalDuration, MinDuration: c.MinDuration, MaxDuration: c.MaxDuration,
		LastRequest: c.LastRequest, FlightsExtracted: c.FlightsExtracted,
	}
}

func (c DomainSnapshot) successRate() float64 {
	if c.Total == 0 {
		return 1
	}
	return float64(c.Successes) / float64(c.Total)
}

// MemorySample is one point-in-time process memory reading.
type MemorySample struct {
	Timestamp   time.Time
	RSSBytes    uint64
	HeapObjects uint64
	Percent     float64
}

// AdapterJob describes one adapter's scheduled crawl loop: a fixed set of
// routes (search parameter sets), an invocation interval, and the
// safety-wrapped crawl function to call.
type AdapterJob struct {
	Site      string
	CrawlURLs []string
	Routes    []flightmodel.SearchParams
	Interval  time.Duration
	Crawl     safety.Crawler
}

// Scheduler owns one long-running task per active adapter (spec.md
// §4.8): each loops over its configured routes, invokes the safety
// crawler, and sleeps Interval between passes. Tasks are independent and
// cancellable; a failing adapter never stalls another.
type Scheduler struct {
	mu           sync.RWMutex
	safety       *safety.SafetyCrawler
	breakers     *breaker.Manager
	counters     map[string]*DomainCounters
	sites        map[string]struct{}
	memSamples   []MemorySample
	memSampleCap int
	now          func() time.Time
}

// New constructs a Scheduler wired to the shared safety crawler and
// circuit-breaker manager.
func New(safetyCrawler *safety.SafetyCrawler, breakers *breaker.Manager) *Scheduler {
	return &Scheduler{
		safety:       safetyCrawler,
		breakers:     breakers,
		counters:     make(map[string]*DomainCounters),
		sites:        make(map[string]struct{}),
		memSampleCap: defaultMemorySampleCap,
		now:          time.Now,
	}
}

func (s *Scheduler) countersFor(site string) *DomainCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[site]
	if !ok {
		c = &DomainCounters{}
		s.counters[site] = c
	}
	s.sites[site] = struct{}{}
	return c
}

// RunAdapter blocks, looping over job.Routes and invoking the safety
// crawler for each, sleeping job.Interval between full passes, until ctx
// is cancelled. One route's failure never prevents the next route (or the
// next pass) from running.
func (s *Scheduler) RunAdapter(ctx context.Context, job AdapterJob) {
	counters := s.countersFor(job.Site)
	interval := job.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	for {
		for _, params := range job.Routes {
			select {
			case <-ctx.Done():
				return
			default:
			}

			start := s.now()
			records, err := s.safety.Attempt(ctx, job.Site, job.CrawlURLs, params, job.Crawl)
			counters.record(err == nil, s.now().Sub(start), len(records), s.now())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// DomainSnapshot returns a read-only view of one adapter's counters.
func (s *Scheduler) DomainSnapshot(site string) DomainSnapshot {
	return s.countersFor(site).snapshot()
}

// SampleMemory runs a background loop that records a MemorySample every
// period until ctx is cancelled.
func (s *Scheduler) SampleMemory(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *Scheduler) sampleOnce() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	sample := MemorySample{
		Timestamp:   s.now(),
		RSSBytes:    m.Sys,
		HeapObjects: m.HeapObjects,
		Percent:     float64(m.Alloc) / float64(m.Sys) * 100,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memSamples = append(s.memSamples, sample)
	if len(s.memSamples) > s.memSampleCap {
		s.memSamples = s.memSamples[len(s.memSamples)-s.memSampleCap:]
	}
}

// MemorySamples returns a copy of the recorded memory-sample ring.
func (s *Scheduler) MemorySamples() []MemorySample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MemorySample, len(s.memSamples))
	copy(out, s.memSamples)
	return out
}

// OverallHealth classifies aggregate health per spec.md §4.8: healthy
// when global success rate >= 0.8 and no breaker is open; degraded when
// success rate < 0.8 and no breaker is open; unhealthy when any breaker
// is open, regardless of success rate.
func (s *Scheduler) OverallHealth() Status {
	s.mu.RLock()
	sites := make([]string, 0, len(s.sites))
	for site := range s.sites {
		sites = append(sites, site)
	}
	counters := make(map[string]*DomainCounters, len(s.counters))
	for k, v := range s.counters {
		counters[k] = v
	}
	s.mu.RUnlock()

	var totalSuccesses, totalAttempts int
	anyOpen := false
	for _, site := range sites {
		snap := counters[site].snapshot()
		totalSuccesses += snap.Successes
		totalAttempts += snap.Total
		if s.breakers != nil {
			status := s.breakers.GetStatus(site)
			for _, scopeStatus := range status.Scopes {
				if scopeStatus.State == breaker.StateOpen {
					anyOpen = true
				}
			}
		}
	}

	if anyOpen {
		return StatusUnhealthy
	}

	rate := 1.0
	if totalAttempts > 0 {
		rate = float64(totalSuccesses) / float64(totalAttempts)
	}
	if rate >= healthySuccessRate {
		return StatusHealthy
	}
	return StatusDegraded
}
