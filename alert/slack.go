package alert

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackSink posts alert events to a Slack incoming webhook.
type SlackSink struct {
	webhookURL string
	channel    string
}

// NewSlackSink creates a sink that posts to the given incoming webhook URL.
func NewSlackSink(webhookURL, channel string) *SlackSink {
	return &SlackSink{webhookURL: webhookURL, channel: channel}
}

// Name returns the sink's identifier for error reporting.
func (s *SlackSink) Name() string { return "slack" }

// Send posts the event as a Slack message. The context is accepted for
// interface symmetry; slack.PostWebhookContext honors its deadline.
func (s *SlackSink) Send(ctx context.Context, ev Event) error {
	msg := &slack.WebhookMessage{
		Channel: s.channel,
		Text: fmt.Sprintf("[%s] %s/%s: %s (correlation=%s)",
			ev.Severity, ev.AdapterName, ev.Operation, ev.Message, ev.CorrelationID),
	}
	return slack.PostWebhookContext(ctx, s.webhookURL, msg)
}
