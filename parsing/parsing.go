// Package parsing implements the three result-parsing strategies dispatched
// by the adapter template's extract step (spec.md §4.6): persian,
// international, and aggregator. Strategies are pure: they never perform
// I/O and carry no state beyond their own configuration.
//
// Grounded on the original Python adapters/strategies/parsing_strategies.py
// and persian_text.py (see original_source/); the digit-folding mechanism
// has no suitable third-party library in the pack, so it is implemented
// directly as a rune-range table.
package parsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/flightcrawl/core/flightmodel"
)

// Strategy names the parsing dialect a crawl dispatches to.
type Strategy string

const (
	StrategyPersian       Strategy = "persian"
	StrategyInternational Strategy = "international"
	StrategyAggregator    Strategy = "aggregator"
)

// Element is the minimal DOM-derived view a parser consumes: a map from
// the adapter's configured field name (origin.Extraction.ResultsParsing.*)
// to the raw text content found in that field.
type Element struct {
	Fields map[string]string
}

// Context carries the per-adapter configuration a parser needs: the field
// map telling it which keys in Element.Fields hold which concept, and the
// metadata describing the adapter's declared kind/currency.
type Context struct {
	Fields   flightmodel.ResultsParsingFields
	Metadata flightmodel.AdapterMetadata
}

// Result is the outcome of one parse() call (spec.md §4.6).
type Result struct {
	Success  bool
	Data     flightmodel.FlightRecord
	Errors   []string
	Warnings []string
}

// Parser is the shared contract every strategy implements.
type Parser interface {
	Parse(el Element, ctx Context) Result
	ExtractPrice(raw string) (float64, string, error)
	ExtractTime(raw string) (time.Time, error)
	Validate(r flightmodel.FlightRecord) error
}

// Detect picks the strategy to dispatch to, per spec.md §4.6's
// auto-detection rule: persian when currency is IRR or the adapter's kind
// is persian; aggregator when the adapter metadata flags it so; otherwise
// international.
func Detect(meta flightmodel.AdapterMetadata) Strategy {
	switch {
	case meta.Kind == flightmodel.KindPersian || strings.EqualFold(meta.Currency, "IRR"):
		return StrategyPersian
	case meta.Kind == flightmodel.KindAggregator:
		return StrategyAggregator
	default:
		return StrategyInternational
	}
}

// ForStrategy returns the stateless Parser implementing s.
func ForStrategy(s Strategy) Parser {
	switch s {
	case StrategyPersian:
		return persianParser{}
	case StrategyAggregator:
		return aggregatorParser{}
	default:
		return internationalParser{}
	}
}

func field(el Element, name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(el.Fields[name])
}

var timePattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

func parseHHMM(raw string) (time.Time, error) {
	m := timePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return time.Time{}, fmt.Errorf("parsing: %q is not an HH:MM time", raw)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC), nil
}
