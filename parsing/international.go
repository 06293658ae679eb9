package parsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/flightcrawl/core/flightmodel"
)

// currencySymbols is the fixed symbol-scan table from spec.md §4.6.
var currencySymbols = []struct {
	symbol   string
	currency string
}{
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"AED", "AED"},
	{"₺", "TRY"},
	{"TRY", "TRY"},
	{"QAR", "QAR"},
	{"CAD", "CAD"},
	{"AUD", "AUD"},
	{"¥", "JPY"},
}

func detectCurrency(raw string) string {
	for _, c := range currencySymbols {
		if strings.Contains(raw, c.symbol) {
			return c.currency
		}
	}
	return ""
}

var internationalDurationPattern = regexp.MustCompile(`(?:(\d+)\s*h)?\s*(?:(\d+)\s*m(?:in)?)?`)

func parseInternationalDuration(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	m := internationalDurationPattern.FindStringSubmatch(trimmed)
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, fmt.Errorf("parsing: %q is not an international duration (Nh Mm or N min)", raw)
	}
	var hours, minutes int
	if m[1] != "" {
		hours, _ = strconv.Atoi(m[1])
	}
	if m[2] != "" {
		minutes, _ = strconv.Atoi(m[2])
	}
	return hours*60 + minutes, nil
}

type internationalParser struct{}

func (internationalParser) ExtractPrice(raw string) (float64, string, error) {
	currency := detectCurrency(raw)
	if currency == "" {
		return 0, "", fmt.Errorf("parsing: %q has no recognizable currency", raw)
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '.' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return 0, "", fmt.Errorf("parsing: %q contains no price digits", raw)
	}
	price, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parsing: invalid international price %q: %w", raw, err)
	}
	return price, currency, nil
}

func (internationalParser) ExtractTime(raw string) (time.Time, error) {
	return parseHHMM(raw)
}

func (internationalParser) Validate(r flightmodel.FlightRecord) error {
	switch r.Currency {
	case "USD", "EUR", "GBP", "AED", "TRY", "QAR", "CAD", "AUD", "JPY":
	default:
		return fmt.Errorf("parsing: unknown international currency %q", r.Currency)
	}
	if r.Price < 0 || r.Price > 10_000 {
		return fmt.Errorf("parsing: international price %v outside [0, 10000]", r.Price)
	}
	return nil
}

func (p internationalParser) Parse(el Element, ctx Context) Result {
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

	durationMinutes, err := parseInternationalDuration(field(el, f.Duration))
	if err != nil {
		res.Warnings = append(res.Warnings, err.Error())
		durationMinutes = int(arrTime.Sub(depTime).Minutes())
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
