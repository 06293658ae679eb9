package errhandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flightcrawl/core/alert"
	"github.com/flightcrawl/core/breaker"
	"github.com/flightcrawl/core/errctx"
)

func fixedHostMetrics() errctx.HostMetrics { return errctx.HostMetrics{RAMPercent: 42} }

func newTestHandler() *Handler {
	return New(breaker.NewManager(), alert.NewDispatcher(nil), WithHostMetrics(fixedHostMetrics))
}

// TestHandleCorrelatesSimilarErrors covers scenario S5: five errors from
// the same adapter/operation reported within the correlation window cross
// link each other's related_errors.
func TestHandleCorrelatesSimilarErrors(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		rc := errctx.New("alibaba", "search_flights")
		h.Handle(ctx, errors.New("connection reset by peer"), rc, errctx.SeverityHigh, errctx.CategoryNetwork, breaker.ScopeAdapter)
		ids = append(ids, rc.SessionID)
	}

	stats := h.GetStatistics()
	if stats.Metrics.TotalErrors != 5 {
		t.Fatalf("expected 5 total errors, got %d", stats.Metrics.TotalErrors)
	}
	if len(stats.Patterns) != 1 {
		t.Fatalf("expected all 5 errors to share one pattern, got %d patterns", len(stats.Patterns))
	}
	if stats.Patterns[0].Occurrences != 5 {
		t.Fatalf("expected pattern occurrences == 5, got %d", stats.Patterns[0].Occurrences)
	}

	recent := h.recordsSince(h.now().Add(-time.Hour))
	if len(recent) != 5 {
		t.Fatalf("expected 5 stored records, got %d", len(recent))
	}
	for _, r := range recent {
		if len(r.RelatedErrors) != 4 {
			t.Fatalf("record %s: expected 4 related errors, got %d (%v)", r.ID, len(r.RelatedErrors), r.RelatedErrors)
		}
	}
	_ = ids
}

// TestCorrelationScoreSymmetric covers property 3: correlationScore(a, b)
// == correlationScore(b, a) for any pair of records.
func TestCorrelationScoreSymmetric(t *testing.T) {
	now := time.Now()
	a := errctx.ErrorRecord{AdapterName: "flytoday", Operation: "search", ErrorType: "*errors.errorString", Category: errctx.CategoryNetwork, Timestamp: now}
	b := errctx.ErrorRecord{AdapterName: "flytoday", Operation: "extract", ErrorType: "*net.OpError", Category: errctx.CategoryTimeout, Timestamp: now.Add(3 * time.Minute)}

	if correlationScore(a, b, 10*time.Minute) != correlationScore(b, a, 10*time.Minute) {
		t.Fatal("correlationScore is not symmetric")
	}
}

// TestCorrelationScoreClampsAtOne covers property 3's upper bound: an
// identical record pair scores exactly 1.0, never more.
func TestCorrelationScoreClampsAtOne(t *testing.T) {
	now := time.Now()
	rec := errctx.ErrorRecord{AdapterName: "flytoday", Operation: "search", ErrorType: "*errors.errorString", Category: errctx.CategoryNetwork, Timestamp: now}
	dup := rec
	dup.ID = "other"

	score := correlationScore(rec, dup, 10*time.Minute)
	if score != 1.0 {
		t.Fatalf("expected clamped score of 1.0 for identical records, got %v", score)
	}
}

// TestHandleOutsideWindowDoesNotCorrelate ensures records separated by more
// than the correlation window never link, even when otherwise identical.
func TestHandleOutsideWindowDoesNotCorrelate(t *testing.T) {
	h := newTestHandler()
	base := time.Now()
	h.now = func() time.Time { return base }

	rc1 := errctx.New("alibaba", "search_flights")
	h.Handle(context.Background(), errors.New("boom"), rc1, errctx.SeverityHigh, errctx.CategoryNetwork, breaker.ScopeAdapter)

	h.now = func() time.Time { return base.Add(20 * time.Minute) }
	rc2 := errctx.New("alibaba", "search_flights")
	h.Handle(context.Background(), errors.New("boom"), rc2, errctx.SeverityHigh, errctx.CategoryNetwork, breaker.ScopeAdapter)

	recent := h.recordsSince(base)
	for _, r := range recent {
		if len(r.RelatedErrors) != 0 {
			t.Fatalf("expected no correlation across a 20-minute gap, got %v", r.RelatedErrors)
		}
	}
}

// TestHandleRoutesFailureToBreakerAndDeniesRetryWhenOpen covers the
// integration between the error handler and the circuit breaker: once the
// adapter scope opens, Handle stops recommending retry.
func TestHandleRoutesFailureToBreakerAndDeniesRetryWhenOpen(t *testing.T) {
	breakers := breaker.NewManager()
	breakers.Configure("alibaba", breaker.ScopeAdapter, breaker.Config{FailureThreshold: 2, RecoveryTimeout: time.Minute})
	h := New(breakers, alert.NewDispatcher(nil), WithHostMetrics(fixedHostMetrics))

	var lastRetry bool
	for i := 0; i < 3; i++ {
		rc := errctx.New("alibaba", "search_flights")
		rc.MaxRetries = 10
		lastRetry, _ = h.Handle(context.Background(), errors.New("element not found"), rc, errctx.SeverityMedium, errctx.CategoryParsing, breaker.ScopeAdapter)
	}
	if lastRetry {
		t.Fatal("expected Handle to deny retry once the adapter breaker opened")
	}
}

// TestHandleDispatchesAlertOnCriticalSeverity covers spec.md §4.4 step 8.
func TestHandleDispatchesAlertOnCriticalSeverity(t *testing.T) {
	var got []alert.Event
	sink := alertRecorder(&got)
	d := alert.NewDispatcher(nil)
	d.Register(sink)
	h := New(breaker.NewManager(), d, WithHostMetrics(fixedHostMetrics))

	rc := errctx.New("alibaba", "search_flights")
	h.Handle(context.Background(), errors.New("site unreachable"), rc, errctx.SeverityCritical, errctx.CategoryNetwork, breaker.ScopeAdapter)

	deadline := time.After(time.Second)
	for {
		if len(got) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for critical alert dispatch")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

// TestSelectStrategyRanksBySuccessRate covers that strategy selection
// prefers higher historical success rate among applicable strategies.
func TestSelectStrategyRanksBySuccessRate(t *testing.T) {
	h := newTestHandler()
	for _, s := range h.strategies {
		if s.ID == "refresh-page" {
			for i := 0; i < 10; i++ {
				s.RecordOutcome(false)
			}
		}
	}

	strat := h.selectStrategy(errctx.CategoryBrowser)
	if strat == nil || strat.ID != "clear-cache" {
		t.Fatalf("expected clear-cache to outrank the always-failing refresh-page, got %+v", strat)
	}
}

// TestSweepPatternsAttachesSuggestions covers the background sweep's
// attachment of resolution suggestions once a pattern crosses the
// occurrence threshold.
func TestSweepPatternsAttachesSuggestions(t *testing.T) {
	h := newTestHandler()
	for i := 0; i < sweepMinOccurrences; i++ {
		rc := errctx.New("mz", "search_flights")
		h.Handle(context.Background(), errors.New("captcha challenge detected"), rc, errctx.SeverityMedium, errctx.CategoryCaptcha, breaker.ScopeAdapter)
	}

	h.SweepPatterns()

	stats := h.GetStatistics()
	if len(stats.Patterns) != 1 || len(stats.Patterns[0].ResolutionSuggestions) == 0 {
		t.Fatalf("expected sweep to attach resolution suggestions, got %+v", stats.Patterns)
	}
}

type alertRecorderSink struct {
	got *[]alert.Event
}

func (s alertRecorderSink) Name() string { return "recorder" }
func (s alertRecorderSink) Send(_ context.Context, ev alert.Event) error {
	*s.got = append(*s.got, ev)
	return nil
}

func alertRecorder(got *[]alert.Event) alert.Sink {
	return alertRecorderSink{got: got}
}
