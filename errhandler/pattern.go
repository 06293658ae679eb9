package errhandler

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/flightcrawl/core/errctx"
)

// Pattern tracks a recurring error fingerprint: occurrences, first/last
// seen, affected adapters, and a severity trend (spec.md §3).
type Pattern struct {
	Key                errctx.PatternKey
	Hash               string
	Occurrences        int
	FirstSeen          time.Time
	LastSeen           time.Time
	AffectedAdapters   map[string]struct{}
	SeverityTrend      []errctx.Severity
	ResolutionSuggestions []string
}

// hashPattern fingerprints (error-type, adapter, operation,
// first-100-chars-of-message), per spec.md's pattern-hash definition.
func hashPattern(k errctx.PatternKey) string {
	h := sha256.New()
	h.Write([]byte(k.ErrorType))
	h.Write([]byte{0})
	h.Write([]byte(k.Adapter))
	h.Write([]byte{0})
	h.Write([]byte(k.Operation))
	h.Write([]byte{0})
	h.Write([]byte(k.MsgPrefix))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// upsert records one more occurrence of this record's pattern.
func (p *Pattern) upsert(rec errctx.ErrorRecord) {
	if p.Occurrences == 0 {
		p.FirstSeen = rec.Timestamp
		p.AffectedAdapters = make(map[string]struct{})
	}
	p.Occurrences++
	p.LastSeen = rec.Timestamp
	p.AffectedAdapters[rec.AdapterName] = struct{}{}
	p.SeverityTrend = append(p.SeverityTrend, rec.Severity)
}

// suggestionsForCategory returns heuristic resolution suggestions based on
// category keywords, attached by the background sweep once a pattern has
// accumulated enough occurrences to be worth investigating.
func suggestionsForCategory(c errctx.Category) []string {
	switch c {
	case errctx.CategoryNetwork:
		return []string{"check upstream site availability", "consider a longer backoff base delay"}
	case errctx.CategoryTimeout:
		return []string{"raise the operation's timeout budget", "check for a slow selector or redirect chain"}
	case errctx.CategoryRateLimit:
		return []string{"lower requests_per_second for this site", "extend the cooldown period"}
	case errctx.CategoryAuthentication:
		return []string{"rotate credentials or session cookies", "verify the site hasn't changed its login flow"}
	case errctx.CategoryCaptcha:
		return []string{"rotate user agent / fingerprint", "reduce crawl frequency to avoid bot detection"}
	case errctx.CategoryParsing, errctx.CategoryValidation:
		return []string{"the site's markup likely changed; review selectors", "fall back to the international parsing strategy"}
	case errctx.CategoryBrowser, errctx.CategoryNavigation:
		return []string{"clear the browser session cache", "verify the search page URL is still valid"}
	case errctx.CategoryFormFilling:
		return []string{"verify search form field selectors", "try the multi_step form strategy"}
	default:
		return []string{"no heuristic available; needs manual triage"}
	}
}
