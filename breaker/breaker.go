// Package breaker implements the multi-scope circuit breaker from spec.md
// §4.3: for each site, four independent breakers (rate_limiter,
// error_handler, adapter, global) compose at admission time. Each scope's
// state machine is grounded directly on the teacher's single-scope
// resilience.CircuitBreaker (closed/open/half-open with a configurable
// reset timeout), generalized here into a per-(site, scope) Manager with
// weighted failure routing and adaptive thresholds.
package breaker

import (
	"sync"
	"time"
)

// State is one of the three circuit-breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Scope identifies which of the four parallel breakers a failure or
// admission check applies to.
type Scope string

const (
	ScopeRateLimiter  Scope = "rate_limiter"
	ScopeErrorHandler Scope = "error_handler"
	ScopeAdapter      Scope = "adapter"
	ScopeGlobal       Scope = "global"
)

var allScopes = [...]Scope{ScopeRateLimiter, ScopeErrorHandler, ScopeAdapter, ScopeGlobal}

// IntegrationFailureType classifies the kind of failure being routed into
// the breaker, which determines its routing weight (spec.md §4.3).
type IntegrationFailureType string

const (
	FailureRateLimitExceeded IntegrationFailureType = "rate_limit_exceeded"
	FailureErrorHandler      IntegrationFailureType = "error_handler_failure"
	FailureAdapter           IntegrationFailureType = "adapter_failure"
	FailureTimeout           IntegrationFailureType = "timeout"
	FailureNetwork           IntegrationFailureType = "network_error"
	FailureValidation        IntegrationFailureType = "validation_error"
)

// failureWeights is the fixed weight table from spec.md §4.3. A failure
// whose weight is >= globalRoutingThreshold is also routed to the global
// scope in addition to its originating scope.
var failureWeights = map[IntegrationFailureType]float64{
	FailureRateLimitExceeded: 0.5,
	FailureErrorHandler:      1.0,
	FailureAdapter:           1.0,
	FailureTimeout:           0.8,
	FailureNetwork:           0.9,
	FailureValidation:        0.3,
}

const globalRoutingThreshold = 0.8

// Weight returns the routing weight for a failure type, defaulting to 1.0
// for unrecognized types (treated as a full-weight failure).
func Weight(t IntegrationFailureType) float64 {
	if w, ok := failureWeights[t]; ok {
		return w
	}
	return 1.0
}

// Config is the per-scope breaker configuration (spec.md §4.3).
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls int

	// Adaptive, when true, lets the effective threshold float between
	// FailureThreshold and 10x FailureThreshold based on recent traffic,
	// per spec.md §4.3 and the Open Question leaving the concrete
	// coefficients implementation-defined. Never below 1, never above
	// 10x the configured base.
	Adaptive bool
}

func (c *Config) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 1
	}
}

// breakerState is one (site, scope) state machine.
type breakerState struct {
	mu              sync.Mutex
	cfg             Config
	state           State
	consecutiveFail int
	lastFailure     time.Time
	lastSuccess     time.Time
	halfOpenTrials  int
	halfOpenSuccess int

	// adaptive bookkeeping: a decaying request-rate estimate used to raise
	// or lower the effective threshold within [base, 10*base].
	recentRequests int
	windowStart     time.Time
}

func newBreakerState(cfg Config) *breakerState {
	cfg.applyDefaults()
	return &breakerState{cfg: cfg, state: StateClosed, windowStart: time.Now()}
}

// effectiveThresholdLocked applies the adaptive policy: during a window
// with sustained high throughput (more than 10x the failure threshold in
// requests observed), the threshold rises; in a quiet window it decays
// back toward the base. Bounds: never below 1, never above 10x base.
func (b *breakerState) effectiveThresholdLocked(now time.Time) int {
	base := b.cfg.FailureThreshold
	if !b.cfg.Adaptive {
		return base
	}
	if now.Sub(b.windowStart) > time.Minute {
		b.recentRequests = 0
		b.windowStart = now
	}
	high := base * 10
	switch {
	case b.recentRequests > base*10:
		return high
	case b.recentRequests < base:
		if base < 1 {
			return 1
		}
		return base
	default:
		// Linear interpolation between base and high over [base, base*10]
		// requests observed this window.
		span := base*10 - base
		if span <= 0 {
			return base
		}
		frac := float64(b.recentRequests-base) / float64(span)
		t := base + int(frac*float64(high-base))
		if t < 1 {
			t = 1
		}
		if t > high {
			t = high
		}
		return t
	}
}

func (b *breakerState) currentStateLocked(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.lastFailure) >= b.cfg.RecoveryTimeout {
		b.state = StateHalfOpen
		b.halfOpenTrials = 0
		b.halfOpenSuccess = 0
	}
	return b.state
}

// allow reports whether a request is admitted by this single scope, and
// reserves a half-open trial slot if applicable. Never permits more than
// HalfOpenMaxCalls concurrent trials in half-open.
func (b *breakerState) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.recentRequests++
	switch b.currentStateLocked(now) {
	case StateOpen:
		return false
	case StateHalfOpen:
		if b.halfOpenTrials >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenTrials++
		return true
	default:
		return true
	}
}

func (b *breakerState) reportSuccess(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSuccess = now
	switch b.state {
	case StateClosed:
		b.consecutiveFail = 0
	case StateHalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.cfg.HalfOpenMaxCalls {
			b.state = StateClosed
			b.consecutiveFail = 0
			b.halfOpenTrials = 0
			b.halfOpenSuccess = 0
		}
	}
}

func (b *breakerState) reportFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = now
	switch b.state {
	case StateClosed:
		b.consecutiveFail++
		if b.consecutiveFail >= b.effectiveThresholdLocked(now) {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.halfOpenTrials = 0
		b.halfOpenSuccess = 0
	}
}

func (b *breakerState) snapshot(now time.Time) Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		State:           b.currentStateLocked(now),
		ConsecutiveFail: b.consecutiveFail,
		LastFailure:     b.lastFailure,
		LastSuccess:     b.lastSuccess,
		HalfOpenTrials:  b.halfOpenTrials,
	}
}

// Status is a read-only snapshot of one (site, scope) breaker.
type Status struct {
	State           State
	ConsecutiveFail int
	LastFailure     time.Time
	LastSuccess     time.Time
	HalfOpenTrials  int
}

// Manager owns the four-scope breaker set for every site. It is a
// process-wide singleton shared by all adapters, mediating access with
// per-site-and-scope locking (each breakerState has its own mutex).
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]map[Scope]*breakerState
	configs  map[string]map[Scope]Config
	now      func() time.Time
}

// NewManager creates an empty Manager. Sites/scopes are configured lazily.
func NewManager() *Manager {
	return &Manager{
		breakers: make(map[string]map[Scope]*breakerState),
		configs:  make(map[string]map[Scope]Config),
		now:      time.Now,
	}
}

// Configure sets the configuration for one (site, scope) pair.
func (m *Manager) Configure(site string, scope Scope, cfg Config) {
	cfg.applyDefaults()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configs[site] == nil {
		m.configs[site] = make(map[Scope]Config)
	}
	m.configs[site][scope] = cfg
	if m.breakers[site] == nil {
		m.breakers[site] = make(map[Scope]*breakerState)
	}
	m.breakers[site][scope] = newBreakerState(cfg)
}

// ConfigureAll applies the same configuration to all four scopes of a site.
func (m *Manager) ConfigureAll(site string, cfg Config) {
	for _, s := range allScopes {
		m.Configure(site, s, cfg)
	}
}

func (m *Manager) stateFor(site string, scope Scope) *breakerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[site][scope]; ok {
		return b
	}
	cfg := m.configs[site][scope]
	if m.breakers[site] == nil {
		m.breakers[site] = make(map[Scope]*breakerState)
	}
	b := newBreakerState(cfg)
	m.breakers[site][scope] = b
	return b
}

// CanMakeRequest reports whether a request in the given scope is admitted.
// A request is admitted only when BOTH the global breaker and the
// scope-specific breaker for the caller's context permit it.
func (m *Manager) CanMakeRequest(site string, scope Scope) bool {
	now := m.now()
	if scope != ScopeGlobal {
		if !m.stateFor(site, ScopeGlobal).allow(now) {
			return false
		}
	}
	return m.stateFor(site, scope).allow(now)
}

// ReportFailure routes a failure of the given type to its originating
// scope and, when the failure type's weight is >= 0.8, also to the global
// scope (spec.md §4.3).
func (m *Manager) ReportFailure(site string, scope Scope, failureType IntegrationFailureType) {
	now := m.now()
	m.stateFor(site, scope).reportFailure(now)
	if scope != ScopeGlobal && Weight(failureType) >= globalRoutingThreshold {
		m.stateFor(site, ScopeGlobal).reportFailure(now)
	}
}

// ReportSuccess records a success against one scope. Per the Open Question
// in spec.md §9(1), whether a recovery-driven success should also reset
// the scope-specific failure counter is left to the caller: ReportSuccess
// resets it in the closed state, and when half-open successes reach
// HalfOpenMaxCalls and close the breaker; a half-open success below that
// count, or a success while open, leaves it unchanged. Callers that want the ambiguous "recovery succeeded but don't reset
// history" behavior should not call this from inside recovery.
func (m *Manager) ReportSuccess(site string, scope Scope) {
	m.stateFor(site, scope).reportSuccess(m.now())
}

// ScopeStatus returns a read-only snapshot of one (site, scope) breaker.
func (m *Manager) ScopeStatus(site string, scope Scope) Status {
	return m.stateFor(site, scope).snapshot(m.now())
}

// OverallStatus bundles every scope's snapshot plus the health score and a
// human-readable recommendation (spec.md §6's CircuitBreaker.getStatus()).
type OverallStatus struct {
	Scopes         map[Scope]Status
	HealthScore    int
	Recommendation string
}

// GetStatus implements CircuitBreaker.getStatus() → {per-scope state,
// health_score ∈ [0,100], recommendation}. Health score = 100 − 25·open −
// 10·half_open across the four scopes.
func (m *Manager) GetStatus(site string) OverallStatus {
	now := m.now()
	scopes := make(map[Scope]Status, len(allScopes))
	openCount, halfOpenCount := 0, 0
	for _, s := range allScopes {
		st := m.stateFor(site, s).snapshot(now)
		scopes[s] = st
		switch st.State {
		case StateOpen:
			openCount++
		case StateHalfOpen:
			halfOpenCount++
		}
	}

	score := 100 - 25*openCount - 10*halfOpenCount
	if score < 0 {
		score = 0
	}

	var rec string
	switch {
	case openCount > 0:
		rec = "one or more scopes open: stop routing new traffic to this site until recovery"
	case halfOpenCount > 0:
		rec = "recovering: admit trial traffic only"
	default:
		rec = "healthy: normal traffic"
	}

	return OverallStatus{Scopes: scopes, HealthScore: score, Recommendation: rec}
}
