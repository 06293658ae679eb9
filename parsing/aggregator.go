package parsing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/flightcrawl/core/flightmodel"
)

func hasLocaleDigits(s string) bool {
	for _, r := range s {
		if _, ok := persianDigits[r]; ok {
			return true
		}
	}
	return false
}

// aggregatorParser is the hybrid strategy for meta-search sites that
// re-list offers sourced from other carriers/aggregators (spec.md §4.6):
// it folds locale digits when present, then falls through to the
// international price/time grammar.
type aggregatorParser struct{}

func (aggregatorParser) ExtractPrice(raw string) (float64, string, error) {
	text := raw
	if hasLocaleDigits(text) {
		text = foldDigits(text)
	}
	currency := detectCurrency(text)
	if currency == "" {
		currency = "USD"
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return 0, "", fmt.Errorf("parsing: %q contains no price digits", raw)
	}
	price, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parsing: invalid aggregator price %q: %w", raw, err)
	}
	return price, currency, nil
}

func (aggregatorParser) ExtractTime(raw string) (time.Time, error) {
	text := raw
	if hasLocaleDigits(text) {
		text = foldDigits(text)
	}
	return parseHHMM(text)
}

func (aggregatorParser) Validate(r flightmodel.FlightRecord) error {
	if r.Price < 0 || r.Price > 1e8 {
		return fmt.Errorf("parsing: aggregator price %v outside [0, 1e8]", r.Price)
	}
	_, hasSourceAirline := r.Extensions["source_airline"]
	_, hasBookingSource := r.Extensions["booking_source"]
	if !hasSourceAirline && !hasBookingSource {
		return fmt.Errorf("parsing: aggregator record must carry source_airline or booking_source")
	}
	return nil
}

func (p aggregatorParser) Parse(el Element, ctx Context) Result {
	var res Result
	f := ctx.Fields

	airline := field(el, f.Airline)
	if airline == "" {
		res.Errors = append(res.Errors, "missing airline field")
	}

	price, currency, err := p.ExtractPrice(field(el, f.Price))
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	}

	depTime, err := p.ExtractTime(field(el, f.DepartureTime))
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	}
	arrTime, err := p.ExtractTime(field(el, f.ArrivalTime))
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	}

	durationMinutes, werr := parseInternationalDuration(field(el, f.Duration))
	if werr != nil {
		res.Warnings = append(res.Warnings, werr.Error())
		durationMinutes = int(arrTime.Sub(depTime).Minutes())
	}

	ext := map[string]any{}
	if src, ok := el.Fields["source_airline"]; ok && src != "" {
		ext["source_airline"] = src
	}
	if src, ok := el.Fields["booking_source"]; ok && src != "" {
		ext["booking_source"] = src
	}

	rec := flightmodel.FlightRecord{
		Airline:         airline,
		AirlineEnglish:  airline,
		FlightNumber:    field(el, f.FlightNumber),
		DepartureTime:   depTime,
		ArrivalTime:     arrTime,
		DurationMinutes: durationMinutes,
		Price:           price,
		Currency:        currency,
		SeatClass:       flightmodel.SeatClass(field(el, f.SeatClass)),
		Extensions:      ext,
	}

	if len(res.Errors) > 0 {
		return res
	}
	if err := p.Validate(rec); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	res.Success = true
	res.Data = rec
	return res
}
