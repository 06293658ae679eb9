package errhandler

import (
	"time"

	"github.com/flightcrawl/core/errctx"
)

// correlationScore computes the additive similarity score between two
// error records per spec.md §4.4 step 4: same adapter +0.3, same
// operation +0.2, same error type +0.2, same category +0.1, time delta
// <= 10 min +0.2. The function is symmetric in a and b by construction
// (every term compares the two records, never favors one side), and
// identical records score 1.0 after clamping.
func correlationScore(a, b errctx.ErrorRecord, window time.Duration) float64 {
	var score float64

	if a.AdapterName == b.AdapterName {
		score += 0.3
	}
	if a.Operation == b.Operation {
		score += 0.2
	}
	if a.ErrorType == b.ErrorType {
		score += 0.2
	}
	if a.Category == b.Category {
		score += 0.1
	}

	delta := a.Timestamp.Sub(b.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	if delta <= window {
		score += 0.2
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

const defaultCorrelationWindow = 10 * time.Minute
