// Package errctx defines the closed error taxonomy (categories, severities,
// actions) and the request-scoped context record threaded through every
// retriable operation in the crawler core (spec.md §4.1).
package errctx

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Category is the closed set of error categories an exception is mapped to
// at the boundary that raises it.
type Category string

const (
	CategoryNetwork       Category = "network"
	CategoryParsing       Category = "parsing"
	CategoryValidation    Category = "validation"
	CategoryTimeout       Category = "timeout"
	CategoryAuthentication Category = "authentication"
	CategoryRateLimit     Category = "rate_limit"
	CategoryResource      Category = "resource"
	CategoryBrowser       Category = "browser"
	CategoryFormFilling   Category = "form_filling"
	CategoryNavigation    Category = "navigation"
	CategoryCaptcha       Category = "captcha"
	CategoryUnknown       Category = "unknown"
)

// Severity ranks how serious a reported error is.
type Severity string

const (
	SeverityLow       Severity = "low"
	SeverityMedium    Severity = "medium"
	SeverityHigh      Severity = "high"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// rank orders severities for comparisons like "severity >= critical".
var rank = map[Severity]int{
	SeverityLow:       0,
	SeverityMedium:    1,
	SeverityHigh:      2,
	SeverityCritical:  3,
	SeverityEmergency: 4,
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return rank[s] >= rank[other]
}

// Action is the disposition chosen by the error handler for a failure.
type Action string

const (
	ActionRetry    Action = "retry"
	ActionFallback Action = "fallback"
	ActionSkip     Action = "skip"
	ActionAbort    Action = "abort"
	ActionEscalate Action = "escalate"
)

// HostMetrics is a snapshot of process health captured alongside an error.
type HostMetrics struct {
	CPUPercent float64
	RAMPercent float64
}

// RequestContext is created at the entry of every retriable operation and
// threaded through; child operations inherit SessionID, CorrelationID, and
// URL but carry their own Operation name and retry counter.
type RequestContext struct {
	AdapterName   string
	Operation     string
	SessionID     string
	CorrelationID string
	URL           string
	RetryCount    int
	MaxRetries    int
	SearchParams  map[string]any // redacted before storage
	StackLocation string
}

// New creates a root RequestContext for a fresh adapter operation.
func New(adapterName, operation string) *RequestContext {
	id := uuid.NewString()
	return &RequestContext{
		AdapterName:   adapterName,
		Operation:     operation,
		SessionID:     id,
		CorrelationID: id,
		MaxRetries:    3,
	}
}

// Child derives a context for a nested operation, inheriting SessionID,
// CorrelationID, and URL, but resetting the retry counter and operation
// name per spec.md §4.1.
func (c *RequestContext) Child(operation string) *RequestContext {
	return &RequestContext{
		AdapterName:   c.AdapterName,
		Operation:     operation,
		SessionID:     c.SessionID,
		CorrelationID: c.CorrelationID,
		URL:           c.URL,
		MaxRetries:    c.MaxRetries,
		SearchParams:  c.SearchParams,
	}
}

// ExhaustedRetries reports whether the context has used up its retry budget.
func (c *RequestContext) ExhaustedRetries() bool {
	return c.RetryCount >= c.MaxRetries
}

type contextKey int

const requestContextKey contextKey = iota

// WithRequestContext attaches a RequestContext to a context.Context so
// downstream collaborators (rate limiter, breaker, logger) can read it
// without it being threaded through every function signature.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// FromContext retrieves the RequestContext previously attached with
// WithRequestContext, or nil if none is present.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey).(*RequestContext)
	return rc
}

// ErrorRecord is the immutable record produced for one reported failure.
type ErrorRecord struct {
	ID            string
	Timestamp     time.Time
	AdapterName   string
	Operation     string
	SessionID     string
	CorrelationID string
	URL           string
	RetryCount    int
	MaxRetries    int
	ErrorType     string
	Message       string
	Category      Category
	Severity      Severity
	Action        Action
	Resolved      bool
	ResolvedBy    string
	RelatedErrors []string
	PatternHash   string
	HostMetrics   HostMetrics
	StackLocation string
}

// PatternKey is the fingerprint (error-type, adapter, operation,
// first-100-chars-of-message) used to deduplicate recurring errors.
type PatternKey struct {
	ErrorType string
	Adapter   string
	Operation string
	MsgPrefix string
}

// MessagePrefix returns the first n runes of msg, used to build a
// PatternKey without pulling the whole message into the fingerprint.
func MessagePrefix(msg string, n int) string {
	r := []rune(msg)
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
