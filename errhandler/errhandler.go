// Package errhandler is the central sink for all operational failures
// (spec.md §4.4): it builds error records, maintains a bounded ring and
// pattern table, correlates related failures, updates the circuit
// breaker, selects a recovery strategy, and escalates critical/emergency
// errors to alert sinks. It is a process-wide singleton shared by every
// adapter (spec.md §3's ownership rules).
//
// The ring drops expired records whenever a new record is written (Run's
// periodic sweep evicts only stale patterns), a shape grounded on the
// teacher's cache.MemoryCache TTL expiry, and the correlation
// scan's parallel-friendly, time-bounded pass mirrors health.Aggregator's
// fan-out idiom, generalized here to a single-lock scan since correlation
// reads the same shared ring each call.
package errhandler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flightcrawl/core/alert"
	"github.com/flightcrawl/core/breaker"
	"github.com/flightcrawl/core/errctx"
	"github.com/flightcrawl/core/health"
)

const (
	defaultRingCapacity  = 10_000
	defaultCorrelationThreshold = 0.8
	recordRetention      = 24 * time.Hour
	patternRetention     = 24 * time.Hour
	selfCheckWindow      = 5 * time.Minute
	selfCheckMaxRecords  = 20
	selfCheckMaxCritical = 3
	sweepInterval        = 30 * time.Minute
	sweepMinOccurrences  = 5
)

// Metrics is a point-in-time snapshot of handler-wide counters.
type Metrics struct {
	TotalErrors int
	BySeverity  map[errctx.Severity]int
	ByCategory  map[errctx.Category]int
	ByAdapter   map[string]int
}

// HostMetricsProvider captures process health at the moment an error is
// recorded. Exposed as an interface so tests can substitute a fixed
// reading instead of sampling the real process.
type HostMetricsProvider func() errctx.HostMetrics

// DefaultHostMetrics reads a best-effort RAM percentage from the Go
// runtime; CPU% is left at zero since stdlib has no portable CPU-percent
// reading without a prior sample window (left to an external collaborator
// in production wiring, per spec.md's external-only observability scope).
func DefaultHostMetrics() errctx.HostMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return errctx.HostMetrics{RAMPercent: float64(m.Alloc) / float64(m.Sys) * 100}
}

// Handler is the process-wide error-handling singleton.
type Handler struct {
	mu       sync.Mutex
	records  []errctx.ErrorRecord
	byID     map[string]int // id -> index into records, for related-error resolution
	patterns map[string]*Pattern

	ringCapacity          int
	correlationWindow     time.Duration
	correlationThreshold  float64

	strategies []*Strategy
	breakers   *breaker.Manager
	alerts     *alert.Dispatcher
	hostMetrics HostMetricsProvider
	now        func() time.Time

	totalErrors int
	bySeverity  map[errctx.Severity]int
	byCategory  map[errctx.Category]int
	byAdapter   map[string]int
}

// Option configures a Handler at construction time.
type Option func(*Handler)

// WithRingCapacity overrides the default 10,000-record ring capacity.
func WithRingCapacity(n int) Option {
	return func(h *Handler) { h.ringCapacity = n }
}

// WithCorrelationWindow overrides the default 10-minute correlation window.
func WithCorrelationWindow(d time.Duration) Option {
	return func(h *Handler) { h.correlationWindow = d }
}

// WithCorrelationThreshold overrides the default 0.8 correlation threshold.
func WithCorrelationThreshold(t float64) Option {
	return func(h *Handler) { h.correlationThreshold = t }
}

// WithHostMetrics overrides how host metrics are captured per error.
func WithHostMetrics(p HostMetricsProvider) Option {
	return func(h *Handler) { h.hostMetrics = p }
}

// New constructs a Handler wired to a breaker.Manager and alert.Dispatcher.
func New(breakers *breaker.Manager, alerts *alert.Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		byID:                 make(map[string]int),
		patterns:             make(map[string]*Pattern),
		ringCapacity:         defaultRingCapacity,
		correlationWindow:    defaultCorrelationWindow,
		correlationThreshold: defaultCorrelationThreshold,
		strategies:           BuiltinStrategies(),
		breakers:             breakers,
		alerts:               alerts,
		hostMetrics:          DefaultHostMetrics,
		now:                  time.Now,
		bySeverity:           make(map[errctx.Severity]int),
		byCategory:           make(map[errctx.Category]int),
		byAdapter:            make(map[string]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// failureTypeFor maps a taxonomy category to the circuit breaker's
// integration-failure-type vocabulary (spec.md §4.3's weight table).
func failureTypeFor(c errctx.Category) breaker.IntegrationFailureType {
	switch c {
	case errctx.CategoryNetwork:
		return breaker.FailureNetwork
	case errctx.CategoryTimeout:
		return breaker.FailureTimeout
	case errctx.CategoryValidation:
		return breaker.FailureValidation
	case errctx.CategoryRateLimit:
		return breaker.FailureRateLimitExceeded
	default:
		return breaker.FailureAdapter
	}
}

// Handle implements ErrorHandler.handle(exception, context, severity,
// category) → (retry, strategyId) from spec.md §6. scope identifies which
// circuit-breaker scope this failure is routed to.
func (h *Handler) Handle(ctx context.Context, err error, rc *errctx.RequestContext, severity errctx.Severity, category errctx.Category, scope breaker.Scope) (retry bool, strategyID string) {
	now := h.now()
	rec := errctx.ErrorRecord{
		ID:            uuid.NewString(),
		Timestamp:     now,
		AdapterName:   rc.AdapterName,
		Operation:     rc.Operation,
		SessionID:     rc.SessionID,
		CorrelationID: rc.CorrelationID,
		URL:           rc.URL,
		RetryCount:    rc.RetryCount,
		MaxRetries:    rc.MaxRetries,
		ErrorType:     errorTypeName(err),
		Message:       err.Error(),
		Category:      category,
		Severity:      severity,
		HostMetrics:   h.hostMetrics(),
		StackLocation: rc.StackLocation,
	}
	key := errctx.PatternKey{
		ErrorType: rec.ErrorType,
		Adapter:   rec.AdapterName,
		Operation: rec.Operation,
		MsgPrefix: errctx.MessagePrefix(rec.Message, 100),
	}
	rec.PatternHash = hashPattern(key)

	h.mu.Lock()
	h.storeRecordLocked(rec)
	h.updateMetricsLocked(rec)
	h.upsertPatternLocked(key, rec)
	related := h.correlateLocked(rec)
	rec.RelatedErrors = related
	h.updateRecordRelatedLocked(rec.ID, related)
	site := rec.AdapterName
	h.mu.Unlock()

	if h.breakers != nil {
		h.breakers.ReportFailure(site, scope, failureTypeFor(category))
	}

	strat := h.selectStrategy(category)
	if strat != nil {
		strategyID = strat.ID
	}

	admits := h.breakers == nil || h.breakers.CanMakeRequest(site, scope)
	if !rc.ExhaustedRetries() && admits && strat != nil {
		retry = true
	} else {
		h.markUnresolved(rec.ID, errctx.ActionAbort)
	}

	if severity.AtLeast(errctx.SeverityCritical) && h.alerts != nil {
		h.alerts.Dispatch(ctx, alert.Event{
			AdapterName:   rc.AdapterName,
			Operation:     rc.Operation,
			Severity:      alert.Severity(severity),
			Message:       rec.Message,
			CorrelationID: rc.CorrelationID,
		})
	}

	return retry, strategyID
}

func errorTypeName(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%T", err)
}

// storeRecordLocked appends rec to the ring, evicting the oldest entry
// once capacity is exceeded.
func (h *Handler) storeRecordLocked(rec errctx.ErrorRecord) {
	h.evictExpiredLocked(rec.Timestamp)
	if len(h.records) >= h.ringCapacity {
		oldest := h.records[0]
		h.records = h.records[1:]
		delete(h.byID, oldest.ID)
		for id, idx := range h.byID {
			h.byID[id] = idx - 1
		}
	}
	h.records = append(h.records, rec)
	h.byID[rec.ID] = len(h.records) - 1
}

// evictExpiredLocked drops records older than the 24h retention window.
func (h *Handler) evictExpiredLocked(now time.Time) {
	cutoff := now.Add(-recordRetention)
	i := 0
	for i < len(h.records) && h.records[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	h.records = append([]errctx.ErrorRecord(nil), h.records[i:]...)
	h.byID = make(map[string]int, len(h.records))
	for idx, r := range h.records {
		h.byID[r.ID] = idx
	}
}

func (h *Handler) updateMetricsLocked(rec errctx.ErrorRecord) {
	h.totalErrors++
	h.bySeverity[rec.Severity]++
	h.byCategory[rec.Category]++
	h.byAdapter[rec.AdapterName]++
}

func (h *Handler) upsertPatternLocked(key errctx.PatternKey, rec errctx.ErrorRecord) {
	p, ok := h.patterns[rec.PatternHash]
	if !ok {
		p = &Pattern{Key: key, Hash: rec.PatternHash}
		h.patterns[rec.PatternHash] = p
	}
	p.upsert(rec)
}

// correlateLocked scores rec against every record within the correlation
// window and returns the ids of records scoring >= correlationThreshold.
func (h *Handler) correlateLocked(rec errctx.ErrorRecord) []string {
	var related []string
	for _, other := range h.records {
		if other.ID == rec.ID {
			continue
		}
		if rec.Timestamp.Sub(other.Timestamp) > h.correlationWindow || other.Timestamp.Sub(rec.Timestamp) > h.correlationWindow {
			continue
		}
		if correlationScore(rec, other, h.correlationWindow) >= h.correlationThreshold {
			related = append(related, other.ID)
		}
	}
	return related
}

// updateRecordRelatedLocked stores rec's own related-error links and
// cross-links each related record back to rec, per spec.md S5's
// "records (2..5) each list record 1 in their related_errors".
func (h *Handler) updateRecordRelatedLocked(id string, related []string) {
	if idx, ok := h.byID[id]; ok {
		h.records[idx].RelatedErrors = related
	}
	for _, rid := range related {
		if idx, ok := h.byID[rid]; ok {
			h.records[idx].RelatedErrors = appendUnique(h.records[idx].RelatedErrors, id)
		}
	}
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func (h *Handler) markUnresolved(id string, action errctx.Action) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if idx, ok := h.byID[id]; ok {
		h.records[idx].Action = action
	}
}

// selectStrategy ranks applicable strategies by historical success rate
// and returns the best one, or nil if none apply to category.
func (h *Handler) selectStrategy(category errctx.Category) *Strategy {
	var candidates []*Strategy
	for _, s := range h.strategies {
		if s.AppliesTo(category) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].SuccessRate() > candidates[j].SuccessRate()
	})
	return candidates[0]
}

// RecordStrategyOutcome feeds back whether a chosen strategy's retry
// ultimately succeeded, so future SuccessRate ranking improves.
func (h *Handler) RecordStrategyOutcome(strategyID string, success bool) {
	for _, s := range h.strategies {
		if s.ID == strategyID {
			s.RecordOutcome(success)
			return
		}
	}
}

// Statistics bundles the handler's metrics, patterns, and strategy success
// rates. It carries no circuit-breaker state.
type Statistics struct {
	Metrics    Metrics
	Patterns   []Pattern
	Strategies map[string]float64
}

// GetStatistics returns a read-only snapshot of handler state.
func (h *Handler) GetStatistics() Statistics {
	h.mu.Lock()
	defer h.mu.Unlock()

	bySeverity := make(map[errctx.Severity]int, len(h.bySeverity))
	for k, v := range h.bySeverity {
		bySeverity[k] = v
	}
	byCategory := make(map[errctx.Category]int, len(h.byCategory))
	for k, v := range h.byCategory {
		byCategory[k] = v
	}
	byAdapter := make(map[string]int, len(h.byAdapter))
	for k, v := range h.byAdapter {
		byAdapter[k] = v
	}

	patterns := make([]Pattern, 0, len(h.patterns))
	for _, p := range h.patterns {
		patterns = append(patterns, *p)
	}

	strategies := make(map[string]float64, len(h.strategies))
	for _, s := range h.strategies {
		strategies[s.ID] = s.SuccessRate()
	}

	return Statistics{
		Metrics: Metrics{
			TotalErrors: h.totalErrors,
			BySeverity:  bySeverity,
			ByCategory:  byCategory,
			ByAdapter:   byAdapter,
		},
		Patterns:   patterns,
		Strategies: strategies,
	}
}

// recordsSince returns a copy of every record timestamped at or after cutoff.
func (h *Handler) recordsSince(cutoff time.Time) []errctx.ErrorRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []errctx.ErrorRecord
	for _, r := range h.records {
		if !r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// Checker implements health.Checker: unhealthy if more than 20 records
// were reported in the last 5 minutes, or more than 3 of severity >=
// critical in that same window (spec.md §4.4's self health check).
func (h *Handler) Checker() health.Checker {
	return health.NewCheckerFunc("error_handler", func(ctx context.Context) health.Result {
		window := h.recordsSince(h.now().Add(-selfCheckWindow))
		critical := 0
		for _, r := range window {
			if r.Severity.AtLeast(errctx.SeverityCritical) {
				critical++
			}
		}
		if len(window) > selfCheckMaxRecords || critical > selfCheckMaxCritical {
			return health.Unhealthy("error rate exceeds self-check thresholds", nil).
				WithDetails(map[string]any{"recent_errors": len(window), "recent_critical": critical})
		}
		return health.Healthy("error rate within self-check thresholds").
			WithDetails(map[string]any{"recent_errors": len(window), "recent_critical": critical})
	})
}

// SweepPatterns scans patterns and attaches heuristic resolution
// suggestions to any with >= 5 occurrences that don't have them yet
// (spec.md §4.4's 30-minute background task).
func (h *Handler) SweepPatterns() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.patterns {
		if p.Occurrences >= sweepMinOccurrences && len(p.ResolutionSuggestions) == 0 {
			// Category isn't stored on Pattern directly; recover it from
			// the most recent matching record in the ring.
			cat := h.categoryForPatternLocked(p.Hash)
			p.ResolutionSuggestions = suggestionsForCategory(cat)
		}
	}
}

func (h *Handler) categoryForPatternLocked(hash string) errctx.Category {
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].PatternHash == hash {
			return h.records[i].Category
		}
	}
	return errctx.CategoryUnknown
}

// evictExpiredPatterns drops patterns whose LastSeen exceeds the 24h
// retention window (spec.md §3's pattern lifecycle).
func (h *Handler) evictExpiredPatterns(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cutoff := now.Add(-patternRetention)
	for hash, p := range h.patterns {
		if p.LastSeen.Before(cutoff) {
			delete(h.patterns, hash)
		}
	}
}

// Run starts the background pattern-sweep and retention-eviction loop.
// It blocks until ctx is cancelled.
func (h *Handler) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.SweepPatterns()
			h.evictExpiredPatterns(h.now())
		}
	}
}
