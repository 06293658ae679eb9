package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/flightcrawl/core/adapter/formstrategy"
	"github.com/flightcrawl/core/cache"
)

// HTTPSession implements Session for sites that expose a server-rendered
// results page and don't require a JavaScript-executing browser. It has
// no real DOM: form fields are tracked as a query-string/form-value map
// and submission is a single GET/POST built from them, extraction is a
// regexp-per-field scan over the response body. Adapters needing real DOM
// interaction (selects with JS-populated options, client-rendered
// results) should use chromedpsession instead.
type HTTPSession struct {
	client    *http.Client
	baseURL   string
	method    string
	values    map[string]string
	lastBody  string
	authToken string
	respCache cache.Cache
	cacheTTL  time.Duration
}

// NewHTTPSession creates a session that will submit to baseURL using
// method ("GET" or "POST") once filled.
func NewHTTPSession(baseURL, method string) *HTTPSession {
	if method == "" {
		method = http.MethodGet
	}
	return &HTTPSession{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		method:  method,
		values:  make(map[string]string),
	}
}

// WithResponseCache makes Navigate reuse a GET response fetched within ttl
// instead of re-requesting the same URL, for sites polled more often than
// their listings actually change. A nil c disables caching (the default).
func (s *HTTPSession) WithResponseCache(c cache.Cache, ttl time.Duration) *HTTPSession {
	s.respCache = c
	s.cacheTTL = ttl
	return s
}

func (s *HTTPSession) Authenticate(ctx context.Context, token string) error {
	s.authToken = token
	return nil
}

func (s *HTTPSession) Localize(ctx context.Context, language, currency string) error {
	s.values["lang"] = language
	s.values["currency"] = currency
	return nil
}

func (s *HTTPSession) DismissKnownPopups(ctx context.Context) error { return nil }

func (s *HTTPSession) Navigate(ctx context.Context, url string) error {
	return s.fetch(ctx, url)
}

func (s *HTTPSession) fetch(ctx context.Context, url string) error {
	cacheable := s.respCache != nil && cache.ValidateKey(url) == nil
	if cacheable {
		if cached, ok := s.respCache.Get(ctx, url); ok {
			s.lastBody = string(cached)
			return nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	s.setAuthHeader(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("adapter: server error %d fetching %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	s.lastBody = string(body)

	if cacheable && s.cacheTTL > 0 {
		_ = s.respCache.Set(ctx, url, body, s.cacheTTL)
	}
	return nil
}

// FillField/Select record a value for later submission; field selectors
// here are just the query-parameter/form-field names.
func (s *HTTPSession) FillField(ctx context.Context, selector, value string) error {
	s.values[selector] = value
	return nil
}

func (s *HTTPSession) Select(ctx context.Context, selector, value string) error {
	s.values[selector] = value
	return nil
}

// Click, for an HTTP session, submits the accumulated field values
// whatever the selector: without a DOM there are no individual buttons, so
// every Click is a submission.
func (s *HTTPSession) Click(ctx context.Context, selector string) error {
	var req *http.Request
	var err error
	if s.method == http.MethodPost {
		form := make([]string, 0, len(s.values))
		for k, v := range s.values {
			form = append(form, fmt.Sprintf("%s=%s", k, v))
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, strings.NewReader(strings.Join(form, "&")))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		u := s.baseURL + "?"
		form := make([]string, 0, len(s.values))
		for k, v := range s.values {
			form = append(form, fmt.Sprintf("%s=%s", k, v))
		}
		u += strings.Join(form, "&")
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}
	if err != nil {
		return err
	}
	s.setAuthHeader(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	s.lastBody = string(body)
	return nil
}

func (s *HTTPSession) setAuthHeader(req *http.Request) {
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}
}

func (s *HTTPSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if strings.Contains(s.lastBody, selector) || selector == "" {
		return nil
	}
	return fmt.Errorf("adapter: selector %q not found in response body", selector)
}

func (s *HTTPSession) WaitWhileVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}

// ExtractElements runs one container-delimiting regexp and, for each
// match, a field-specific regexp keyed by fieldSelectors (treated as
// regexp patterns with one capture group, e.g. `<span class="price">([^<]+)</span>`).
func (s *HTTPSession) ExtractElements(ctx context.Context, containerSelector string, fieldSelectors map[string]string) ([]map[string]string, error) {
	containerRe, err := regexp.Compile(containerSelector)
	if err != nil {
		return nil, fmt.Errorf("adapter: invalid container pattern %q: %w", containerSelector, err)
	}
	blocks := containerRe.FindAllString(s.lastBody, -1)

	out := make([]map[string]string, 0, len(blocks))
	for _, block := range blocks {
		fields := make(map[string]string, len(fieldSelectors))
		for name, pattern := range fieldSelectors {
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue
			}
			if m := re.FindStringSubmatch(block); len(m) > 1 {
				fields[name] = strings.TrimSpace(m[1])
			}
		}
		out = append(out, fields)
	}
	return out, nil
}

func (s *HTTPSession) FieldKind(ctx context.Context, selector string) (formstrategy.FieldKind, error) {
	return formstrategy.FieldTextInput, nil
}

func (s *HTTPSession) HasCaptcha(ctx context.Context) (bool, error) {
	return strings.Contains(strings.ToLower(s.lastBody), "captcha"), nil
}

func (s *HTTPSession) Close(ctx context.Context) error { return nil }
