package adapter

import (
	"context"
	"time"

	"github.com/flightcrawl/core/adapter/formstrategy"
)

// Session abstracts the browser or HTTP handle an adapter drives. Two
// concrete implementations exist: adapter/chromedpsession (headless
// browser, the default) and a plain net/http-based session for
// HTTP-only sites. The template only ever talks to this interface so the
// ten-step lifecycle in Crawl stays independent of the transport.
type Session interface {
	// Authenticate attaches a bearer token to subsequent requests, for
	// sites whose search API requires a signed session token rather than
	// plain cookies. A no-op when the adapter declares no AuthSecret.
	Authenticate(ctx context.Context, token string) error

	// Localize sets the session's language/currency preference. Failures
	// are swallowed by the template as warnings (spec.md §4.5 step 3).
	Localize(ctx context.Context, language, currency string) error

	// DismissKnownPopups closes cookie banners/app-install prompts known
	// to the session implementation. Failures are swallowed as warnings.
	DismissKnownPopups(ctx context.Context) error

	// Navigate loads url, tolerating the caller's own retry policy for
	// transient timeouts.
	Navigate(ctx context.Context, url string) error

	// FillField sets the value of the DOM element matched by selector.
	FillField(ctx context.Context, selector, value string) error

	// Select sets the selected option of a <select>-like control.
	Select(ctx context.Context, selector, value string) error

	// Click triggers a click on the element matched by selector.
	Click(ctx context.Context, selector string) error

	// WaitForSelector blocks until selector appears or timeout elapses.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// WaitWhileVisible blocks while selector remains visible (used for a
	// loading indicator), up to timeout.
	WaitWhileVisible(ctx context.Context, selector string, timeout time.Duration) error

	// ExtractElements returns the text content of containerSelector's
	// matches, each keyed by the field names in fieldSelectors.
	ExtractElements(ctx context.Context, containerSelector string, fieldSelectors map[string]string) ([]map[string]string, error)

	// FieldKind reports the DOM field kind detected at selector, used by
	// the automated form strategy's field-detection pass.
	FieldKind(ctx context.Context, selector string) (formstrategy.FieldKind, error)

	// HasCaptcha reports whether any of the session's known CAPTCHA
	// selectors are present on the current page.
	HasCaptcha(ctx context.Context) (bool, error)

	// Close releases the session's resources.
	Close(ctx context.Context) error
}
