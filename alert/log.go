package alert

import "context"

// LogFunc is the subset of observe.Logger's Error method alert needs,
// kept as a function type so this package has no import on observe.
type LogFunc func(ctx context.Context, msg string, fields map[string]any)

// LogSink writes alert events through a structured logger and needs no
// external notification transport. cmd/flightcrawld registers no sinks,
// this one included.
type LogSink struct {
	log LogFunc
}

// NewLogSink creates a sink that forwards events to log.
func NewLogSink(log LogFunc) *LogSink {
	return &LogSink{log: log}
}

// Name returns the sink's identifier for error reporting.
func (s *LogSink) Name() string { return "log" }

// Send logs the event and never fails: a logging sink has no transport
// error to report, matching the teacher's side-effect-free sink contract.
func (s *LogSink) Send(_ context.Context, ev Event) error {
	s.log(context.Background(), ev.Message, map[string]any{
		"adapter":        ev.AdapterName,
		"operation":      ev.Operation,
		"severity":       ev.Severity,
		"correlation_id": ev.CorrelationID,
	})
	return nil
}
