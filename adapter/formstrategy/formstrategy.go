// Package formstrategy implements the automated search-form filling
// delegate an adapter may opt into instead of writing its own
// fillSearchForm (spec.md §4.5.1). It is pure logic over a DOM
// abstraction; all I/O is supplied by the caller's DOM implementation.
//
// Grounded on the original Python
// adapters/strategies/automated_search_form_strategy.py: three
// strategies attempted in order (direct_submit, multi_step,
// ajax_submission), CAPTCHA detection before submission, and
// locale-aware field value formatting.
package formstrategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flightcrawl/core/flightmodel"
)

// FieldKind is the DOM field type detected before a field is filled.
type FieldKind string

const (
	FieldTextInput      FieldKind = "text_input"
	FieldSelectDropdown FieldKind = "select_dropdown"
	FieldAutocomplete   FieldKind = "autocomplete"
	FieldDatePicker     FieldKind = "date_picker"
	FieldCheckbox       FieldKind = "checkbox"
	FieldRadio          FieldKind = "radio"
	FieldButton         FieldKind = "button"
	FieldUnknown        FieldKind = ""
)

// DOM is the minimal surface formstrategy needs from a session. The
// adapter package's Session interface satisfies it directly.
type DOM interface {
	FieldKind(ctx context.Context, selector string) (FieldKind, error)
	FillField(ctx context.Context, selector, value string) error
	Select(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	HasCaptcha(ctx context.Context) (bool, error)
}

// Name identifies one of the three submission strategies.
type Name string

const (
	DirectSubmit   Name = "direct_submit"
	MultiStep      Name = "multi_step"
	AjaxSubmission Name = "ajax_submission"
)

// Result is the structured outcome of Fill, per spec.md §4.5.1.
type Result struct {
	Success         bool
	StrategyUsed    Name
	ExecutionTimeMs int64
	CaptchaDetected bool
	ErrorMessage    string
}

// hasLocaleGlyphs detects Persian/Arabic-range characters in a field hint
// so locale-specific value formatting can be applied.
func hasLocaleGlyphs(s string) bool {
	for _, r := range s {
		if r >= 0x0600 && r <= 0x06FF {
			return true
		}
	}
	return false
}

// localizeValue reformats value when placeholderHint carries
// locale-specific glyphs, folding ASCII digits into Persian ones to match
// the site's expected input format.
func localizeValue(value, placeholderHint string) string {
	if !hasLocaleGlyphs(placeholderHint) {
		return value
	}
	var b strings.Builder
	asciiToPersian := map[rune]rune{'0': '۰', '1': '۱', '2': '۲', '3': '۳', '4': '۴', '5': '۵', '6': '۶', '7': '۷', '8': '۸', '9': '۹'}
	for _, r := range value {
		if p, ok := asciiToPersian[r]; ok {
			b.WriteRune(p)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// fieldValues maps each configured search-form field to the value Fill
// should enter. placeholderHints is never populated: Fill passes each
// field's selector string as the hint to localizeValue, and a field's
// placeholder and aria-label text are not read.
type fieldValues struct {
	origin, destination, departureDate, returnDate, passengers, cabinClass string
	placeholderHints                                                      map[string]string
}

func valuesFrom(params flightmodel.SearchParams) fieldValues {
	fv := fieldValues{
		origin:        params.Origin,
		destination:   params.Destination,
		departureDate: params.DepartureDate.Format("2006-01-02"),
		passengers:    fmt.Sprintf("%d", params.Passengers.Adults+params.Passengers.Children+params.Passengers.Infants),
		cabinClass:    string(params.SeatClass),
	}
	if params.ReturnDate != nil {
		fv.returnDate = params.ReturnDate.Format("2006-01-02")
	}
	return fv
}

func fillCommonFields(ctx context.Context, dom DOM, fields flightmodel.SearchFormFields, fv fieldValues) error {
	steps := []struct {
		selector, value string
	}{
		{fields.OriginField, fv.origin},
		{fields.DestinationField, fv.destination},
		{fields.DepartureDateField, fv.departureDate},
		{fields.PassengersField, fv.passengers},
		{fields.CabinClassField, fv.cabinClass},
	}
	if fv.returnDate != "" {
		steps = append(steps, struct{ selector, value string }{fields.ReturnDateField, fv.returnDate})
	}
	for _, step := range steps {
		if step.selector == "" {
			continue
		}
		kind, err := dom.FieldKind(ctx, step.selector)
		if err != nil {
			return fmt.Errorf("formstrategy: detect field kind for %q: %w", step.selector, err)
		}
		value := localizeValue(step.value, step.selector)
		switch kind {
		case FieldSelectDropdown:
			if err := dom.Select(ctx, step.selector, value); err != nil {
				return fmt.Errorf("formstrategy: select %q: %w", step.selector, err)
			}
		case FieldCheckbox, FieldRadio, FieldButton:
			if err := dom.Click(ctx, step.selector); err != nil {
				return fmt.Errorf("formstrategy: click %q: %w", step.selector, err)
			}
		default: // text_input, autocomplete, date_picker, unknown
			if err := dom.FillField(ctx, step.selector, value); err != nil {
				return fmt.Errorf("formstrategy: fill %q: %w", step.selector, err)
			}
		}
	}
	return nil
}

func tryDirectSubmit(ctx context.Context, dom DOM, fields flightmodel.SearchFormFields, fv fieldValues) error {
	if err := fillCommonFields(ctx, dom, fields, fv); err != nil {
		return err
	}
	if fields.Submit == "" {
		return fmt.Errorf("formstrategy: no submit selector configured")
	}
	return dom.Click(ctx, fields.Submit)
}

func tryMultiStep(ctx context.Context, dom DOM, fields flightmodel.SearchFormFields, fv fieldValues) error {
	// Multi-step forms advance one field group at a time, waiting for the
	// next step's submit control to render before continuing.
	steps := []struct {
		selector, value string
	}{
		{fields.OriginField, fv.origin},
		{fields.DestinationField, fv.destination},
	}
	for _, step := range steps {
		if step.selector == "" {
			continue
		}
		if err := dom.FillField(ctx, step.selector, localizeValue(step.value, step.selector)); err != nil {
			return fmt.Errorf("formstrategy: multi_step fill %q: %w", step.selector, err)
		}
		if err := dom.WaitForSelector(ctx, fields.DepartureDateField, 5*time.Second); err != nil {
			return fmt.Errorf("formstrategy: multi_step advance: %w", err)
		}
	}
	if fields.DepartureDateField != "" {
		if err := dom.FillField(ctx, fields.DepartureDateField, fv.departureDate); err != nil {
			return fmt.Errorf("formstrategy: multi_step date: %w", err)
		}
	}
	if fields.Submit == "" {
		return fmt.Errorf("formstrategy: no submit selector configured")
	}
	return dom.Click(ctx, fields.Submit)
}

func tryAjaxSubmission(ctx context.Context, dom DOM, fields flightmodel.SearchFormFields, fv fieldValues, resultsContainer string) error {
	if err := fillCommonFields(ctx, dom, fields, fv); err != nil {
		return err
	}
	if fields.Submit == "" {
		return fmt.Errorf("formstrategy: no submit selector configured")
	}
	if err := dom.Click(ctx, fields.Submit); err != nil {
		return err
	}
	if resultsContainer == "" {
		return nil
	}
	return dom.WaitForSelector(ctx, resultsContainer, 10*time.Second)
}

// Fill attempts direct_submit, then multi_step, then ajax_submission in
// order, stopping at the first that succeeds. Before any submission
// attempt it checks for a CAPTCHA; if present, it aborts immediately and
// reports CaptchaDetected so the caller's error handler can select a
// recovery strategy.
func Fill(ctx context.Context, dom DOM, fields flightmodel.SearchFormFields, params flightmodel.SearchParams, resultsContainer string) Result {
	start := time.Now()
	fv := valuesFrom(params)

	if captcha, err := dom.HasCaptcha(ctx); err == nil && captcha {
		return Result{
			Success:         false,
			CaptchaDetected: true,
			ExecutionTimeMs: time.Since(start).Milliseconds(),
			ErrorMessage:    "captcha detected before submission",
		}
	}

	attempts := []struct {
		name Name
		run  func() error
	}{
		{DirectSubmit, func() error { return tryDirectSubmit(ctx, dom, fields, fv) }},
		{MultiStep, func() error { return tryMultiStep(ctx, dom, fields, fv) }},
		{AjaxSubmission, func() error { return tryAjaxSubmission(ctx, dom, fields, fv, resultsContainer) }},
	}

	var lastErr error
	for _, a := range attempts {
		if err := a.run(); err != nil {
			lastErr = err
			continue
		}
		return Result{
			Success:         true,
			StrategyUsed:    a.name,
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}
	}

	msg := "all form-filling strategies failed"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return Result{
		Success:         false,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		ErrorMessage:    msg,
	}
}
