package errhandler

import (
	"sync"
	"time"

	"github.com/flightcrawl/core/errctx"
)

// Strategy is a named recovery action the handler may choose after a
// failure (spec.md §4.4's recovery-strategy table). Strategies track their
// own historical success rate so selectStrategy can rank by it.
type Strategy struct {
	ID                  string
	ApplicableCategories []errctx.Category
	MaxAttempts         int
	BaseDelay           time.Duration
	ExponentialBackoff  bool

	mu         sync.Mutex
	attempts   int
	successes  int
}

// AppliesTo reports whether this strategy is registered for category.
func (s *Strategy) AppliesTo(category errctx.Category) bool {
	for _, c := range s.ApplicableCategories {
		if c == category {
			return true
		}
	}
	return false
}

// Delay computes the backoff delay for the given 1-indexed attempt number.
func (s *Strategy) Delay(attempt int) time.Duration {
	if !s.ExponentialBackoff {
		return s.BaseDelay
	}
	d := s.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// RecordOutcome updates the strategy's historical success rate.
func (s *Strategy) RecordOutcome(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if success {
		s.successes++
	}
}

// SuccessRate returns the strategy's historical success rate, defaulting
// to 0.5 when no outcomes have been recorded yet so a brand-new strategy
// isn't automatically ranked last against ones with a single failure.
func (s *Strategy) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts == 0 {
		return 0.5
	}
	return float64(s.successes) / float64(s.attempts)
}

// BuiltinStrategies returns fresh copies of the five strategies from
// spec.md §4.4's recovery-strategy table.
func BuiltinStrategies() []*Strategy {
	return []*Strategy{
		{
			ID:                   "retry-with-backoff",
			ApplicableCategories: []errctx.Category{errctx.CategoryNetwork, errctx.CategoryTimeout},
			MaxAttempts:          3,
			BaseDelay:            time.Second,
			ExponentialBackoff:   true,
		},
		{
			ID:                   "refresh-page",
			ApplicableCategories: []errctx.Category{errctx.CategoryBrowser, errctx.CategoryNavigation},
			MaxAttempts:          2,
			BaseDelay:            2 * time.Second,
		},
		{
			ID:                   "clear-cache",
			ApplicableCategories: []errctx.Category{errctx.CategoryBrowser, errctx.CategoryResource},
			MaxAttempts:          1,
			BaseDelay:            5 * time.Second,
		},
		{
			ID:                   "change-user-agent",
			ApplicableCategories: []errctx.Category{errctx.CategoryAuthentication, errctx.CategoryCaptcha},
			MaxAttempts:          2,
			BaseDelay:            3 * time.Second,
		},
		{
			ID:                   "fallback-extraction",
			ApplicableCategories: []errctx.Category{errctx.CategoryParsing, errctx.CategoryValidation},
			MaxAttempts:          1,
			BaseDelay:            500 * time.Millisecond,
		},
	}
}
