// Package chromedpsession implements adapter.Session on top of
// github.com/chromedp/chromedp, the default (and only headless-browser)
// session backend wired into the crawler core. Grounded on
// mattsp1290-ag-ui's use of chromedp for browser-driven integration tests
// (chromedp.NewContext/Run/Navigate/WaitVisible), generalized here into a
// long-lived per-crawl session instead of a one-shot test harness.
package chromedpsession

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/flightcrawl/core/adapter/formstrategy"
)

// knownCaptchaSelectors are DOM selectors the session checks for before a
// form submission (spec.md §4.5.1's CAPTCHA-detection step).
var knownCaptchaSelectors = []string{
	"iframe[src*='recaptcha']",
	"div.g-recaptcha",
	"div#cf-challenge-running",
	"div[class*='captcha']",
}

// Session drives a single headless Chrome tab for the duration of one
// adapter crawl.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// New launches a fresh headless Chrome tab scoped to parent's lifetime.
func New(parent context.Context) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, chromedp.DefaultExecAllocatorOptions[:]...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		tabCancel()
		allocCancel()
	}
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("chromedpsession: start browser: %w", err)
	}
	return &Session{ctx: tabCtx, cancel: cancel}, nil
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	return chromedp.Run(s.ctx, actions...)
}

// Authenticate stashes token as window.__authToken, for sites whose
// client-side script attaches it to subsequent XHR/fetch calls; there is
// no notion of a per-request header to set from outside the page itself.
func (s *Session) Authenticate(ctx context.Context, token string) error {
	return s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return chromedp.Evaluate(fmt.Sprintf(`window.__authToken = %q;`, token), nil).Do(c)
	}))
}

// Localize assigns language and currency to the page globals
// window.__locale and window.__currency. It sends no Accept-Language
// header and sets no cookie or storage key.
func (s *Session) Localize(ctx context.Context, language, currency string) error {
	return s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return chromedp.Evaluate(fmt.Sprintf(`window.__locale = %q; window.__currency = %q;`, language, currency), nil).Do(c)
	}))
}

// DismissKnownPopups clicks the first matching close control for a small
// set of known popup patterns, ignoring any that aren't present.
func (s *Session) DismissKnownPopups(ctx context.Context) error {
	selectors := []string{
		"button[aria-label='Close']",
		".cookie-consent button.accept",
		".modal-close",
	}
	for _, sel := range selectors {
		_ = s.run(ctx, chromedp.Click(sel, chromedp.ByQuery))
	}
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	return chromedp.Run(navCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (s *Session) FillField(ctx context.Context, selector, value string) error {
	return s.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (s *Session) Select(ctx context.Context, selector, value string) error {
	return s.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *Session) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	return chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// WaitWhileVisible polls until selector is no longer visible or timeout
// elapses; chromedp has no native "wait while visible" action so this
// polls Evaluate directly, matching the teacher's preference for explicit
// polling loops over hidden library retries.
func (s *Session) WaitWhileVisible(ctx context.Context, selector string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var visible bool
		err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(
			`(function(){var el=document.querySelector(%q); return !!el && el.offsetParent !== null;})()`, selector,
		), &visible))
		if err != nil {
			return err
		}
		if !visible {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("chromedpsession: %q still visible after %s", selector, timeout)
}

// ExtractElements returns, for every node matching containerSelector, the
// trimmed text content of each configured child field selector.
func (s *Session) ExtractElements(ctx context.Context, containerSelector string, fieldSelectors map[string]string) ([]map[string]string, error) {
	script := buildExtractionScript(containerSelector, fieldSelectors)
	var raw []map[string]string
	if err := s.run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return nil, fmt.Errorf("chromedpsession: extract elements: %w", err)
	}
	return raw, nil
}

func buildExtractionScript(containerSelector string, fieldSelectors map[string]string) string {
	var fields strings.Builder
	for name, sel := range fieldSelectors {
		fmt.Fprintf(&fields, "%q: (el.querySelector(%q) || {}).textContent || '', ", name, sel)
	}
	return fmt.Sprintf(`
(function() {
  var out = [];
  document.querySelectorAll(%q).forEach(function(el) {
    out.push({ %s });
  });
  return out;
})()`, containerSelector, fields.String())
}

// FieldKind inspects a form control's tag name, input type, and class
// list to classify it (spec.md §4.5.1's field-detection heuristic).
func (s *Session) FieldKind(ctx context.Context, selector string) (formstrategy.FieldKind, error) {
	script := fmt.Sprintf(`
(function() {
  var el = document.querySelector(%q);
  if (!el) return "";
  var tag = el.tagName.toLowerCase();
  var type = (el.getAttribute('type') || '').toLowerCase();
  var cls = el.className || '';
  if (tag === 'select') return 'select_dropdown';
  if (tag === 'button' || type === 'submit' || type === 'button') return 'button';
  if (type === 'checkbox') return 'checkbox';
  if (type === 'radio') return 'radio';
  if (type === 'date' || /datepicker|date-picker/i.test(cls)) return 'date_picker';
  if (/autocomplete|typeahead/i.test(cls)) return 'autocomplete';
  return 'text_input';
})()`, selector)
	var kind string
	if err := s.run(ctx, chromedp.Evaluate(script, &kind)); err != nil {
		return formstrategy.FieldUnknown, err
	}
	return formstrategy.FieldKind(kind), nil
}

// HasCaptcha checks every known CAPTCHA selector pattern against the
// current page.
func (s *Session) HasCaptcha(ctx context.Context) (bool, error) {
	script := fmt.Sprintf(`(function(){ var sels = %s; for (var i=0;i<sels.length;i++){ if (document.querySelector(sels[i])) return true; } return false; })()`,
		jsStringArray(knownCaptchaSelectors))
	var found bool
	if err := s.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return false, err
	}
	return found, nil
}

func jsStringArray(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

// Close tears down the browser tab and its allocator.
func (s *Session) Close(ctx context.Context) error {
	s.cancel()
	return nil
}
