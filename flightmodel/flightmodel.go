// Package flightmodel defines the normalized data shapes shared across the
// crawler core: flight records, search parameters, adapter metadata, and
// the value types used by the error taxonomy, circuit breaker, and rate
// limiter to describe their own state.
package flightmodel

import (
	"fmt"
	"time"
)

// SeatClass enumerates the cabin classes a flight record may report.
type SeatClass string

const (
	SeatEconomy         SeatClass = "economy"
	SeatBusiness        SeatClass = "business"
	SeatFirst           SeatClass = "first"
	SeatPremiumEconomy  SeatClass = "premium_economy"
)

// AdapterKind classifies a site adapter by locale/family.
type AdapterKind string

const (
	KindPersian       AdapterKind = "persian"
	KindInternational AdapterKind = "international"
	KindAggregator    AdapterKind = "aggregator"
)

// CreationStrategy selects how the factory builds an adapter instance.
type CreationStrategy string

const (
	CreationDirect CreationStrategy = "direct"
	CreationModule CreationStrategy = "module"
)

// FlightRecord is the normalized output of a crawl.
type FlightRecord struct {
	Airline         string
	AirlineEnglish  string
	FlightNumber    string
	Origin          string
	Destination     string
	DepartureTime   time.Time
	ArrivalTime     time.Time
	DurationMinutes int
	Price           float64
	Currency        string
	SeatClass       SeatClass
	AircraftType    string
	Stops           int
	SourceSite      string
	ScrapedAt       time.Time

	// Extensions holds adapter-specific fields that don't belong in the
	// fixed shape: baggage allowance, fare rules, mileage, refund policy,
	// and the confidence score attached by the quality-checking pass.
	Extensions map[string]any
}

// Validate enforces the invariants spec.md §3 places on a flight record,
// independent of any adapter-declared price/duration range.
func (r FlightRecord) Validate() error {
	if r.Origin == "" || r.Destination == "" {
		return fmt.Errorf("flightmodel: origin and destination are required")
	}
	if len(r.Origin) != 3 || len(r.Destination) != 3 {
		return fmt.Errorf("flightmodel: origin/destination must be 3-letter codes, got %q/%q", r.Origin, r.Destination)
	}
	if !r.ArrivalTime.After(r.DepartureTime) {
		return fmt.Errorf("flightmodel: arrival_time %s must be after departure_time %s", r.ArrivalTime, r.DepartureTime)
	}
	if r.DurationMinutes < 0 {
		return fmt.Errorf("flightmodel: duration_minutes must be >= 0, got %d", r.DurationMinutes)
	}
	actual := r.ArrivalTime.Sub(r.DepartureTime).Minutes()
	declared := float64(r.DurationMinutes)
	if diff := actual - declared; diff > 60 || diff < -60 {
		return fmt.Errorf("flightmodel: duration_minutes %d diverges from computed %.0f by more than 60 minutes", r.DurationMinutes, actual)
	}
	if r.Price < 0 {
		return fmt.Errorf("flightmodel: price must be >= 0, got %f", r.Price)
	}
	if r.Stops < 0 {
		return fmt.Errorf("flightmodel: stops must be >= 0, got %d", r.Stops)
	}
	switch r.SeatClass {
	case SeatEconomy, SeatBusiness, SeatFirst, SeatPremiumEconomy:
	default:
		return fmt.Errorf("flightmodel: unknown seat_class %q", r.SeatClass)
	}
	return nil
}

// WithinRange reports whether the record's price and duration fall inside
// the adapter-declared bounds (spec.md §4.5 step 8).
func (r FlightRecord) WithinRange(priceMin, priceMax float64, durationMin, durationMax int) bool {
	if r.Price < priceMin || r.Price > priceMax {
		return false
	}
	if r.DurationMinutes < durationMin || r.DurationMinutes > durationMax {
		return false
	}
	return true
}

// Passengers breaks down the traveler counts in a search request.
type Passengers struct {
	Adults   int
	Children int
	Infants  int
}

// TripType distinguishes one-way from round-trip searches.
type TripType string

const (
	TripOneWay    TripType = "one_way"
	TripRoundTrip TripType = "round_trip"
)

// SearchParams carries the caller's flight-search request. Required fields
// beyond Origin/Destination/DepartureDate are adapter-declared.
type SearchParams struct {
	Origin        string
	Destination   string
	DepartureDate time.Time
	ReturnDate    *time.Time
	Passengers    Passengers
	SeatClass     SeatClass
	TripType      TripType
}

// Validate checks the fields every adapter requires regardless of its own
// declared required-field list.
func (p SearchParams) Validate() error {
	if p.Origin == "" || p.Destination == "" {
		return fmt.Errorf("flightmodel: search params require origin and destination")
	}
	if p.DepartureDate.IsZero() {
		return fmt.Errorf("flightmodel: search params require departure_date")
	}
	if p.TripType == TripRoundTrip && p.ReturnDate == nil {
		return fmt.Errorf("flightmodel: round_trip search requires return_date")
	}
	if p.Passengers.Adults <= 0 {
		return fmt.Errorf("flightmodel: search params require at least one adult passenger")
	}
	return nil
}

// RateLimitConfig is the per-site admission configuration (spec.md §4.2).
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstLimit        int
	CooldownPeriod    time.Duration
}

// CircuitBreakerConfig is the per-scope breaker configuration (spec.md §4.3).
type CircuitBreakerConfig struct {
	FailureThreshold  int
	RecoveryTimeout   time.Duration
	HalfOpenMaxCalls  int
	AdaptiveThreshold bool
}

// ErrorHandlingConfig captures the retry/breaker knobs an adapter exposes.
type ErrorHandlingConfig struct {
	MaxRetries     int
	RetryDelay     time.Duration
	CircuitBreaker CircuitBreakerConfig
}

// DataValidationConfig is the per-adapter validation range (spec.md §3).
type DataValidationConfig struct {
	RequiredFields []string
	PriceMin       float64
	PriceMax       float64
	DurationMin    int
	DurationMax    int
}

// SearchFormFields names the DOM fields the default form filler targets.
type SearchFormFields struct {
	OriginField        string
	DestinationField   string
	DepartureDateField string
	ReturnDateField    string
	PassengersField    string
	CabinClassField    string
	Submit             string
}

// ResultsParsingFields names the DOM fields the default extractor targets.
type ResultsParsingFields struct {
	Container     string
	Airline       string
	FlightNumber  string
	DepartureTime string
	ArrivalTime   string
	Duration      string
	Price         string
	SeatClass     string
	Extra         map[string]string
}

// ExtractionConfig groups the two DOM-facing configuration blocks.
type ExtractionConfig struct {
	SearchForm     SearchFormFields
	ResultsParsing ResultsParsingFields
}

// AdapterMetadata is a registry entry describing one site adapter.
type AdapterMetadata struct {
	Name             string
	Kind             AdapterKind
	BaseURL          string
	SearchURL        string
	Currency         string
	FeatureTags      []string
	Creation         CreationStrategy
	ModuleName       string // only meaningful when Creation == CreationModule
	Active           bool
	RateLimiting     RateLimitConfig
	ErrorHandling    ErrorHandlingConfig
	MonitoringOn     bool
	Extraction       ExtractionConfig
	DataValidation   DataValidationConfig
	IntervalSeconds  int
	// AuthSecret, when non-empty, signs a short-lived session token (see
	// the adapter package's signSessionToken) for sites whose search API requires a signed
	// bearer token rather than plain session cookies.
	AuthSecret string
}

// NormalizedName lowercases and replaces non-alphanumerics with
// underscores, per spec.md §4.9's registry key convention.
func NormalizedName(name string) string {
	out := make([]rune, 0, len(name))
	prevUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
			prevUnderscore = false
		case r >= 'A' && r <= 'Z':
			out = append(out, r-'A'+'a')
			prevUnderscore = false
		default:
			if !prevUnderscore && len(out) > 0 {
				out = append(out, '_')
				prevUnderscore = true
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '_' {
		out = out[:len(out)-1]
	}
	return string(out)
}
