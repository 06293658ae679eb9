// Package adapter implements the site-adapter lifecycle template
// (spec.md §4.5): validate → admit → init session → navigate → fill form
// → submit → extract → validate results → normalize → report. It
// collapses the original Python implementation's multi-level inheritance
// (base → enhanced → locale → site crawler, see
// original_source/adapters/base_adapters/) into one concrete Template
// value plus two function-typed hooks, per DESIGN NOTES §9: no runtime
// type-switching on subclass identity.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/flightcrawl/core/adapter/formstrategy"
	"github.com/flightcrawl/core/auth"
	"github.com/flightcrawl/core/breaker"
	"github.com/flightcrawl/core/errctx"
	"github.com/flightcrawl/core/errhandler"
	"github.com/flightcrawl/core/flightmodel"
	"github.com/flightcrawl/core/parsing"
	"github.com/flightcrawl/core/ratelimit"
)

const (
	maxAdmissionWait   = 5 * time.Second
	resultsSettleDelay = 300 * time.Millisecond
	loadingWaitTimeout = 15 * time.Second
)

// FillSearchFormFunc fills the adapter's search form. The default,
// installed when an adapter leaves FillSearchForm nil, delegates to
// formstrategy.Fill.
type FillSearchFormFunc func(ctx context.Context, sess Session, fields flightmodel.SearchFormFields, params flightmodel.SearchParams) error

// ParseFlightElementFunc parses one extracted DOM element into a flight
// record. The default, installed when an adapter leaves
// ParseFlightElement nil, dispatches to parsing.ForStrategy(parsing.Detect(meta)).
type ParseFlightElementFunc func(el parsing.Element, pctx parsing.Context) parsing.Result

// Template is the concrete lifecycle skeleton every site adapter
// parameterizes with its own metadata, session constructor, and (optional)
// hooks.
type Template struct {
	Metadata   flightmodel.AdapterMetadata
	NewSession func(ctx context.Context) (Session, error)

	// FillSearchForm and ParseFlightElement are the template's two
	// polymorphic capabilities (spec.md §4.5). Leave nil to use the
	// default implementation.
	FillSearchForm     FillSearchFormFunc
	ParseFlightElement ParseFlightElementFunc

	RateLimiter  *ratelimit.Limiter
	Breakers     *breaker.Manager
	ErrorHandler *errhandler.Handler
}

func (t *Template) site() string { return t.Metadata.Name }

// validateParams enforces both the universal SearchParams invariants and
// the adapter's own declared required-field list (spec.md §4.5 step 1).
func (t *Template) validateParams(params flightmodel.SearchParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	for _, field := range t.Metadata.DataValidation.RequiredFields {
		switch field {
		case "origin":
			if params.Origin == "" {
				return fmt.Errorf("adapter: required field %q missing", field)
			}
		case "destination":
			if params.Destination == "" {
				return fmt.Errorf("adapter: required field %q missing", field)
			}
		case "departure_date":
			if params.DepartureDate.IsZero() {
				return fmt.Errorf("adapter: required field %q missing", field)
			}
		case "return_date":
			if params.ReturnDate == nil {
				return fmt.Errorf("adapter: required field %q missing", field)
			}
		}
	}
	return nil
}

// admit blocks for at most maxAdmissionWait waiting on rate-limiter
// admission, per spec.md §4.5 step 2.
func (t *Template) admit(ctx context.Context) error {
	allowed, waitMillis, reason := t.RateLimiter.CanMakeRequest(t.site())
	if allowed {
		return nil
	}
	wait := time.Duration(waitMillis) * time.Millisecond
	if wait > maxAdmissionWait {
		return fmt.Errorf("adapter: rate limited (%s), wait %s exceeds admission cap", reason, wait)
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return ctx.Err()
	}
	allowed, _, reason = t.RateLimiter.CanMakeRequest(t.site())
	if !allowed {
		return fmt.Errorf("adapter: rate limited (%s) after waiting", reason)
	}
	return nil
}

// withRetry drives the error handler's retry decision loop for one
// lifecycle step: it invokes op, and on failure asks the error handler
// whether to retry, sleeping 10ms times the retry count between
// attempts. The chosen strategy's base delay and exponential backoff are
// not applied.
func (t *Template) withRetry(ctx context.Context, rc *errctx.RequestContext, category errctx.Category, scope breaker.Scope, op func() error) error {
	for {
		err := op()
		if err == nil {
			return nil
		}
		retry, _ := t.ErrorHandler.Handle(ctx, err, rc, errctx.SeverityMedium, category, scope)
		if !retry {
			return err
		}
		rc.RetryCount++
		select {
		case <-time.After(10 * time.Millisecond * time.Duration(rc.RetryCount)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Crawl implements the adapter's single operation: crawl(searchParams) →
// list<FlightRecord>, enforcing the ten-step order from spec.md §4.5.
func (t *Template) Crawl(ctx context.Context, params flightmodel.SearchParams) ([]flightmodel.FlightRecord, error) {
	site := t.site()
	rc := errctx.New(site, "crawl")
	rc.MaxRetries = t.Metadata.ErrorHandling.MaxRetries
	if rc.MaxRetries <= 0 {
		rc.MaxRetries = 1
	}

	// Step 1: validate.
	if err := t.validateParams(params); err != nil {
		t.ErrorHandler.Handle(ctx, err, rc, errctx.SeverityLow, errctx.CategoryValidation, breaker.ScopeAdapter)
		return nil, err
	}

	// Step 2: admission.
	if err := t.admit(ctx); err != nil {
		t.ErrorHandler.Handle(ctx, err, rc, errctx.SeverityMedium, errctx.CategoryRateLimit, breaker.ScopeRateLimiter)
		return nil, err
	}

	start := time.Now()

	// Step 3: init session; localize and popup dismissal failures are
	// swallowed as warnings.
	sess, err := t.NewSession(ctx)
	if err != nil {
		t.report(site, false, time.Since(start))
		t.ErrorHandler.Handle(ctx, err, rc, errctx.SeverityHigh, errctx.CategoryBrowser, breaker.ScopeAdapter)
		return nil, fmt.Errorf("adapter: init session: %w", err)
	}
	defer sess.Close(ctx)

	if t.Metadata.AuthSecret != "" {
		keys := auth.NewStaticKeyProvider([]byte(t.Metadata.AuthSecret))
		token, signErr := signSessionToken(ctx, site, keys)
		if signErr != nil {
			t.report(site, false, time.Since(start))
			return nil, fmt.Errorf("adapter: init session: %w", signErr)
		}
		if authErr := sess.Authenticate(ctx, token); authErr != nil {
			t.report(site, false, time.Since(start))
			return nil, fmt.Errorf("adapter: init session: authenticate: %w", authErr)
		}
	}

	_ = sess.Localize(ctx, "en", t.Metadata.Currency)
	_ = sess.DismissKnownPopups(ctx)

	// Step 4: navigate, tolerating transient timeouts via retry.
	navCtx := rc.Child("navigate")
	navErr := t.withRetry(ctx, navCtx, errctx.CategoryTimeout, breaker.ScopeAdapter, func() error {
		return sess.Navigate(ctx, t.Metadata.SearchURL)
	})
	if navErr != nil {
		t.report(site, false, time.Since(start))
		return nil, fmt.Errorf("adapter: navigate: %w", navErr)
	}

	// Step 5: fill the search form.
	fillCtx := rc.Child("fill_search_form")
	fillErr := t.withRetry(ctx, fillCtx, errctx.CategoryFormFilling, breaker.ScopeAdapter, func() error {
		return t.fillSearchForm(ctx, sess, params)
	})
	if fillErr != nil {
		t.report(site, false, time.Since(start))
		return nil, fmt.Errorf("adapter: fill_search_form: %w", fillErr)
	}

	// Step 6: submit and wait for results to materialize.
	submitCtx := rc.Child("submit")
	container := t.Metadata.Extraction.ResultsParsing.Container
	submitErr := t.withRetry(ctx, submitCtx, errctx.CategoryNavigation, breaker.ScopeAdapter, func() error {
		if err := sess.Click(ctx, t.Metadata.Extraction.SearchForm.Submit); err != nil {
			return err
		}
		if container != "" {
			if err := sess.WaitForSelector(ctx, container, loadingWaitTimeout); err != nil {
				return err
			}
		}
		time.Sleep(resultsSettleDelay)
		return nil
	})
	if submitErr != nil {
		t.report(site, false, time.Since(start))
		return nil, fmt.Errorf("adapter: submit: %w", submitErr)
	}

	// Step 7: extract and dispatch to the parsing strategy.
	raw, err := sess.ExtractElements(ctx, container, fieldSelectorMap(t.Metadata.Extraction.ResultsParsing))
	if err != nil {
		t.report(site, false, time.Since(start))
		extractCtx := rc.Child("extract")
		t.ErrorHandler.Handle(ctx, err, extractCtx, errctx.SeverityHigh, errctx.CategoryParsing, breaker.ScopeAdapter)
		return nil, fmt.Errorf("adapter: extract: %w", err)
	}

	pctx := parsing.Context{Fields: t.Metadata.Extraction.ResultsParsing, Metadata: t.Metadata}
	records := make([]flightmodel.FlightRecord, 0, len(raw))
	for _, fields := range raw {
		res := t.parseFlightElement(parsing.Element{Fields: fields}, pctx)
		if !res.Success {
			continue // step 8: drop records that fail parse-time validation
		}
		rec := res.Data
		// step 8: per-adapter price/duration ranges.
		if err := rec.Validate(); err != nil {
			continue
		}
		dv := t.Metadata.DataValidation
		if dv.PriceMax > 0 && !rec.WithinRange(dv.PriceMin, dv.PriceMax, dv.DurationMin, dv.DurationMax) {
			continue
		}
		// step 9: normalize.
		records = append(records, t.normalize(rec, start))
	}

	// step 10: report.
	if len(records) == 0 {
		t.report(site, false, time.Since(start))
	} else {
		t.report(site, true, time.Since(start))
	}

	return records, nil
}

func fieldSelectorMap(f flightmodel.ResultsParsingFields) map[string]string {
	m := map[string]string{
		"airline":        f.Airline,
		"flight_number":  f.FlightNumber,
		"departure_time": f.DepartureTime,
		"arrival_time":   f.ArrivalTime,
		"duration":       f.Duration,
		"price":          f.Price,
		"seat_class":     f.SeatClass,
	}
	for k, v := range f.Extra {
		m[k] = v
	}
	return m
}

func (t *Template) fillSearchForm(ctx context.Context, sess Session, params flightmodel.SearchParams) error {
	if t.FillSearchForm != nil {
		return t.FillSearchForm(ctx, sess, t.Metadata.Extraction.SearchForm, params)
	}
	res := formstrategy.Fill(ctx, sess, t.Metadata.Extraction.SearchForm, params, t.Metadata.Extraction.ResultsParsing.Container)
	if !res.Success {
		if res.CaptchaDetected {
			return fmt.Errorf("adapter: captcha detected: %s", res.ErrorMessage)
		}
		return fmt.Errorf("adapter: form fill failed (%s strategy): %s", res.StrategyUsed, res.ErrorMessage)
	}
	return nil
}

func (t *Template) parseFlightElement(el parsing.Element, pctx parsing.Context) parsing.Result {
	if t.ParseFlightElement != nil {
		return t.ParseFlightElement(el, pctx)
	}
	strategy := parsing.Detect(t.Metadata)
	return parsing.ForStrategy(strategy).Parse(el, pctx)
}

// normalize canonicalizes a record's source metadata. Airline-name
// canonicalization happens inside the persian strategy's parse step since
// it owns the raw locale text; here the template attaches the fields every
// record gets regardless of strategy.
//
// scrapedAt is the crawl attempt's start time, not time.Now(): normalize is
// idempotent (normalize(normalize(r, t), t) == normalize(r, t)) only
// because it takes the timestamp as an input rather than reading the
// clock itself, and because ScrapedAt is left untouched once already set.
func (t *Template) normalize(rec flightmodel.FlightRecord, scrapedAt time.Time) flightmodel.FlightRecord {
	rec.SourceSite = t.site()
	if rec.ScrapedAt.IsZero() {
		rec.ScrapedAt = scrapedAt.UTC()
	}
	if rec.Extensions == nil {
		rec.Extensions = map[string]any{}
	}
	rec.Extensions["adapter_type"] = string(t.Metadata.Kind)
	return rec
}

func (t *Template) report(site string, success bool, duration time.Duration) {
	t.RateLimiter.RecordRequest(site, duration.Milliseconds(), success, false)
	if success {
		t.Breakers.ReportSuccess(site, breaker.ScopeAdapter)
	} else {
		t.Breakers.ReportFailure(site, breaker.ScopeAdapter, breaker.FailureAdapter)
	}
}
