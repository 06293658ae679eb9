// Package alert provides fire-and-forget alert sinks for the error
// handler's critical/emergency escalation path (spec.md §4.4 step 8).
// Sinks are side-effect-free from the caller's perspective: Dispatch never
// blocks the caller and never returns a sink's error to it.
package alert

import (
	"context"
	"sync"
)

// Severity mirrors errctx.Severity without importing it, so alert stays a
// leaf package with no dependency on the error taxonomy.
type Severity string

// Event is one alert-worthy occurrence.
type Event struct {
	AdapterName string
	Operation   string
	Severity    Severity
	Message     string
	CorrelationID string
	Fields      map[string]any
}

// Sink delivers an Event to an external channel (webhook, Slack, log).
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// ErrorLogger receives sink delivery failures; it is never the error
// handler's own logger directly so that alert stays decoupled.
// cmd/flightcrawld passes nil to NewDispatcher, so it runs with the no-op
// logger.
type ErrorLogger interface {
	LogSinkError(sinkName string, ev Event, err error)
}

// noopErrorLogger silently discards sink failures; used when no logger is
// configured so Dispatcher is usable standalone (e.g. in tests).
type noopErrorLogger struct{}

func (noopErrorLogger) LogSinkError(string, Event, error) {}

// Dispatcher fans an Event out to every registered sink concurrently and
// fire-and-forget: Dispatch returns as soon as the goroutines are started,
// and each sink's error is reported to the ErrorLogger, never propagated.
type Dispatcher struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger ErrorLogger
}

// NewDispatcher creates a Dispatcher with no sinks registered.
func NewDispatcher(logger ErrorLogger) *Dispatcher {
	if logger == nil {
		logger = noopErrorLogger{}
	}
	return &Dispatcher{logger: logger}
}

// Register adds a sink. Safe for concurrent use with Dispatch.
func (d *Dispatcher) Register(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Dispatch sends ev to every registered sink. Each sink runs in its own
// goroutine; Dispatch does not wait for delivery to complete.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	d.mu.RLock()
	sinks := make([]Sink, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.RUnlock()

	for _, s := range sinks {
		go func(s Sink) {
			if err := s.Send(ctx, ev); err != nil {
				d.logger.LogSinkError(s.Name(), ev, err)
			}
		}(s)
	}
}
