package parsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/flightcrawl/core/flightmodel"
)

// persianDigits maps Persian and Arabic-Indic numeral runes to their ASCII
// equivalents. No suitable third-party digit-folding library surfaced in
// the pack, so the rune-range mapping is written out directly.
var persianDigits = map[rune]rune{
	'۰': '0', '۱': '1', '۲': '2', '۳': '3', '۴': '4',
	'۵': '5', '۶': '6', '۷': '7', '۸': '8', '۹': '9',
	'٠': '0', '١': '1', '٢': '2', '٣': '3', '٤': '4',
	'٥': '5', '٦': '6', '٧': '7', '٨': '8', '٩': '9',
}

// foldDigits converts every Persian/Arabic-Indic digit rune in s to ASCII,
// leaving every other rune untouched.
func foldDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if ascii, ok := persianDigits[r]; ok {
			b.WriteRune(ascii)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// asciiToPersianDigit is foldDigits' inverse for the Persian (not
// Arabic-Indic) digit range, the set flytoday-style markup actually emits.
var asciiToPersianDigit = map[rune]rune{
	'0': '۰', '1': '۱', '2': '۲', '3': '۳', '4': '۴',
	'5': '۵', '6': '۶', '7': '۷', '8': '۸', '9': '۹',
}

// unfoldDigits converts every ASCII digit rune in s to its Persian
// equivalent, leaving every other rune untouched. It is foldDigits' inverse
// for formatting values back into the locale's native digit script.
func unfoldDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if persian, ok := asciiToPersianDigit[r]; ok {
			b.WriteRune(persian)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// persianAirlineTable maps common Persian airline names to their English
// equivalents (spec.md §4.5 step 9's "canonicalize airline names" rule,
// applied here at parse time since the persian strategy owns the raw text).
var persianAirlineTable = map[string]string{
	"ایران ایر":     "Iran Air",
	"ماهان ایر":     "Mahan Air",
	"آسمان":         "Aseman Airlines",
	"کاسپین":        "Caspian Airlines",
	"قشم ایر":       "Qeshm Air",
	"زاگرس":         "Zagros Airlines",
	"تابان":         "Taban Air",
}

func canonicalizePersianAirline(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if en, ok := persianAirlineTable[trimmed]; ok {
		return trimmed, en
	}
	return trimmed, trimmed
}

var persianDurationPattern = regexp.MustCompile(`(\d+)\s*ساعت(?:\s*(?:و\s*)?(\d+)\s*دقیقه)?`)

func parsePersianDuration(raw string) (int, error) {
	folded := foldDigits(raw)
	m := persianDurationPattern.FindStringSubmatch(folded)
	if m == nil {
		return 0, fmt.Errorf("parsing: %q is not a Persian duration", raw)
	}
	hours, _ := strconv.Atoi(m[1])
	minutes := 0
	if m[2] != "" {
		minutes, _ = strconv.Atoi(m[2])
	}
	return hours*60 + minutes, nil
}

type persianParser struct{}

// formatPrice renders price in Persian-digit markup, the inverse of
// ExtractPrice: price flows out through formatPrice and back in through
// ExtractPrice unchanged (currency is accepted for symmetry with
// ExtractPrice's return shape, but persian site markup always expresses
// prices in IRR regardless of unit).
func (persianParser) formatPrice(price float64, currency string) string {
	digits := strconv.FormatFloat(price, 'f', -1, 64)
	return unfoldDigits(digits) + " ریال"
}

func (persianParser) ExtractPrice(raw string) (float64, string, error) {
	folded := foldDigits(raw)
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '.' {
			return r
		}
		return -1
	}, folded)
	if digits == "" {
		return 0, "", fmt.Errorf("parsing: %q contains no price digits", raw)
	}
	price, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parsing: invalid persian price %q: %w", raw, err)
	}
	return price, "IRR", nil
}

func (persianParser) ExtractTime(raw string) (time.Time, error) {
	return parseHHMM(foldDigits(raw))
}

func (p persianParser) Validate(r flightmodel.FlightRecord) error {
	if r.Currency != "IRR" {
		return fmt.Errorf("parsing: persian strategy requires IRR currency, got %q", r.Currency)
	}
	if r.Price < 1e3 || r.Price > 5e7 {
		return fmt.Errorf("parsing: persian price %v outside [1e3, 5e7] IRR", r.Price)
	}
	return nil
}

func (p persianParser) Parse(el Element, ctx Context) Result {
	var res Result
	f := ctx.Fields

	rawAirline := field(el, f.Airline)
	if rawAirline == "" {
		res.Errors = append(res.Errors, "missing airline field")
	}
	original, english := canonicalizePersianAirline(rawAirline)

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

	durationMinutes, err := parsePersianDuration(field(el, f.Duration))
	if err != nil {
		res.Warnings = append(res.Warnings, err.Error())
		durationMinutes = int(arrTime.Sub(depTime).Minutes())
	}

	rec := flightmodel.FlightRecord{
		Airline:         original,
		AirlineEnglish:  english,
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
