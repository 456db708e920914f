package health

import "strings"

// FailureClass buckets a scrape failure by its remediation path.
type FailureClass string

const (
	// FailureGeneric is a plain extraction failure. Counts toward the
	// consecutive-failure streak and regeneration thresholds.
	FailureGeneric FailureClass = "generic"
	// FailureRateLimited is an upstream throttle. Transient; never counts
	// toward the streak or regeneration.
	FailureRateLimited FailureClass = "rate_limited"
	// FailureNotFound is a dead URL. Feeds the URL-rot detector rather than
	// the regeneration path.
	FailureNotFound FailureClass = "not_found"
)

// rate-limit signals checked before not-found so a throttled request that
// mentions both never touches the 404 accounting
var rateLimitSignals = []string{"429", "rate limit", "rate-limit", "too many requests"}

var notFoundSignals = []string{"404", "not found"}

// Classify buckets an error message by its text. Matching is deliberately
// substring-based and case-insensitive: scraper modules are opaque and the
// message is the only channel they have to surface HTTP-level signals. The
// matching rules live here, isolated from the state machine, so they can be
// hardened without touching transition code.
func Classify(message string) FailureClass {
	lower := strings.ToLower(message)

	for _, signal := range rateLimitSignals {
		if strings.Contains(lower, signal) {
			return FailureRateLimited
		}
	}
	for _, signal := range notFoundSignals {
		if strings.Contains(lower, signal) {
			return FailureNotFound
		}
	}
	return FailureGeneric
}
