package adapter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/flightcrawl/core/adapter/formstrategy"
	"github.com/flightcrawl/core/alert"
	"github.com/flightcrawl/core/breaker"
	"github.com/flightcrawl/core/errhandler"
	"github.com/flightcrawl/core/flightmodel"
	"github.com/flightcrawl/core/ratelimit"
)

// fakeSession is an in-memory Session double driving a fixed results set,
// standing in for adapter/chromedpsession in tests.
type fakeSession struct {
	navigateErr error
	results     []map[string]string
	captcha     bool
	authToken   string
}

func (f *fakeSession) Authenticate(_ context.Context, token string) error {
	f.authToken = token
	return nil
}
func (f *fakeSession) Localize(context.Context, string, string) error         { return nil }
func (f *fakeSession) DismissKnownPopups(context.Context) error               { return nil }
func (f *fakeSession) Navigate(context.Context, string) error                 { return f.navigateErr }
func (f *fakeSession) FillField(context.Context, string, string) error        { return nil }
func (f *fakeSession) Select(context.Context, string, string) error           { return nil }
func (f *fakeSession) Click(context.Context, string) error                    { return nil }
func (f *fakeSession) WaitForSelector(context.Context, string, time.Duration) error {
	return nil
}
func (f *fakeSession) WaitWhileVisible(context.Context, string, time.Duration) error {
	return nil
}
func (f *fakeSession) ExtractElements(context.Context, string, map[string]string) ([]map[string]string, error) {
	return f.results, nil
}
func (f *fakeSession) FieldKind(context.Context, string) (formstrategy.FieldKind, error) {
	return formstrategy.FieldTextInput, nil
}
func (f *fakeSession) HasCaptcha(context.Context) (bool, error) { return f.captcha, nil }
func (f *fakeSession) Close(context.Context) error              { return nil }

func testMetadata() flightmodel.AdapterMetadata {
	return flightmodel.AdapterMetadata{
		Name:      "flytoday",
		Kind:      flightmodel.KindInternational,
		BaseURL:   "https://flytoday.example",
		SearchURL: "https://flytoday.example/search",
		Currency:  "USD",
		Extraction: flightmodel.ExtractionConfig{
			SearchForm: flightmodel.SearchFormFields{
				OriginField:        "#origin",
				DestinationField:   "#destination",
				DepartureDateField: "#departure",
				PassengersField:    "#pax",
				CabinClassField:    "#cabin",
				Submit:             "#submit",
			},
			ResultsParsing: flightmodel.ResultsParsingFields{
				Container:     ".result",
				Airline:       "airline",
				FlightNumber:  "flight_number",
				DepartureTime: "departure_time",
				ArrivalTime:   "arrival_time",
				Duration:      "duration",
				Price:         "price",
				SeatClass:     "seat_class",
			},
		},
		DataValidation: flightmodel.DataValidationConfig{
			RequiredFields: []string{"origin", "destination", "departure_date"},
			PriceMin:       0,
			PriceMax:       10_000,
			DurationMin:    0,
			DurationMax:    2000,
		},
		ErrorHandling: flightmodel.ErrorHandlingConfig{MaxRetries: 2},
	}
}

func newTemplate(sess *fakeSession) *Template {
	rl := ratelimit.New()
	rl.Configure("flytoday", ratelimit.Config{RequestsPerSecond: 100, BurstLimit: 100})
	br := breaker.NewManager()
	br.ConfigureAll("flytoday", breaker.Config{FailureThreshold: 5})
	eh := errhandler.New(br, alert.NewDispatcher(nil))

	return &Template{
		Metadata:     testMetadata(),
		NewSession:   func(context.Context) (Session, error) { return sess, nil },
		RateLimiter:  rl,
		Breakers:     br,
		ErrorHandler: eh,
	}
}

func validParams() flightmodel.SearchParams {
	return flightmodel.SearchParams{
		Origin:        "IKA",
		Destination:   "DXB",
		DepartureDate: time.Now().Add(24 * time.Hour),
		Passengers:    flightmodel.Passengers{Adults: 1},
		SeatClass:     flightmodel.SeatEconomy,
		TripType:      flightmodel.TripOneWay,
	}
}

func TestCrawlHappyPath(t *testing.T) {
	sess := &fakeSession{results: []map[string]string{
		{
			"airline":        "Emirates",
			"flight_number":  "EK201",
			"departure_time": "14:05",
			"arrival_time":   "18:40",
			"duration":       "4h 35m",
			"price":          "$540.00",
			"seat_class":     "economy",
		},
	}}
	tmpl := newTemplate(sess)

	records, err := tmpl.Crawl(context.Background(), validParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].SourceSite != "flytoday" {
		t.Fatalf("expected source_site to be normalized, got %q", records[0].SourceSite)
	}
	if records[0].Extensions["adapter_type"] != "international" {
		t.Fatalf("expected adapter_type extension, got %v", records[0].Extensions)
	}
}

func TestCrawlRejectsInvalidParams(t *testing.T) {
	tmpl := newTemplate(&fakeSession{})
	_, err := tmpl.Crawl(context.Background(), flightmodel.SearchParams{})
	if err == nil {
		t.Fatal("expected validation error for empty search params")
	}
}

func TestCrawlRetriesTransientNavigationFailureThenSucceeds(t *testing.T) {
	sess := &fakeSession{
		results: []map[string]string{{
			"airline": "Emirates", "departure_time": "14:05", "arrival_time": "18:40",
			"duration": "4h 35m", "price": "$540.00", "seat_class": "economy",
		}},
	}
	tmpl := newTemplate(sess)
	flaky := &onceFailingNavigateSession{fakeSession: sess}
	tmpl.NewSession = func(context.Context) (Session, error) { return flaky, nil }

	records, err := tmpl.Crawl(context.Background(), validParams())
	if err != nil {
		t.Fatalf("expected retry to recover from one transient navigate failure, got %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}

type onceFailingNavigateSession struct {
	*fakeSession
	called bool
}

func (s *onceFailingNavigateSession) Navigate(context.Context, string) error {
	if !s.called {
		s.called = true
		return fmt.Errorf("navigation timeout")
	}
	return nil
}

func TestCrawlCaptchaFailsFormFill(t *testing.T) {
	sess := &fakeSession{captcha: true}
	tmpl := newTemplate(sess)
	_, err := tmpl.Crawl(context.Background(), validParams())
	if err == nil {
		t.Fatal("expected crawl to fail when captcha is detected during form fill")
	}
}

func TestCrawlDropsOutOfRangeRecords(t *testing.T) {
	sess := &fakeSession{results: []map[string]string{
		{
			"airline": "Emirates", "departure_time": "14:05", "arrival_time": "18:40",
			"duration": "4h 35m", "price": "$99999.00", "seat_class": "economy",
		},
	}}
	tmpl := newTemplate(sess)
	records, err := tmpl.Crawl(context.Background(), validParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected out-of-range record to be dropped, got %d", len(records))
	}
}

func TestCrawlSignsSessionTokenWhenAuthSecretConfigured(t *testing.T) {
	sess := &fakeSession{results: []map[string]string{
		{
			"airline": "Emirates", "departure_time": "14:05", "arrival_time": "18:40",
			"duration": "4h 35m", "price": "$540.00", "seat_class": "economy",
		},
	}}
	tmpl := newTemplate(sess)
	tmpl.Metadata.AuthSecret = "shared-secret"

	if _, err := tmpl.Crawl(context.Background(), validParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.authToken == "" {
		t.Fatal("expected a session token to be signed and passed to Authenticate")
	}
}

// TestNormalizeIsIdempotent exercises testable property 4: re-running
// normalize on an already-normalized record must not change it, even when
// given a later timestamp — ScrapedAt reflects the first pass, not the
// latest call.
func TestNormalizeIsIdempotent(t *testing.T) {
	tmpl := newTemplate(&fakeSession{})
	rec := flightmodel.FlightRecord{Airline: "Emirates", Price: 540}

	first := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	once := tmpl.normalize(rec, first)
	twice := tmpl.normalize(once, later)

	if !once.ScrapedAt.Equal(twice.ScrapedAt) {
		t.Fatalf("expected ScrapedAt to stay %v, got %v", once.ScrapedAt, twice.ScrapedAt)
	}
	if once.SourceSite != twice.SourceSite {
		t.Fatalf("expected SourceSite to stay %q, got %q", once.SourceSite, twice.SourceSite)
	}
	if once.Extensions["adapter_type"] != twice.Extensions["adapter_type"] {
		t.Fatalf("expected adapter_type to stay stable across re-normalization")
	}
}
