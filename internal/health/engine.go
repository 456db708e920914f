// -----------------------------------------------------------------------
// Health & Backoff Engine - folds job outcomes into per-source health
// records and computes the next eligible run time. These transitions are
// the only writers of Source.Health and Source.URLHistory.
// -----------------------------------------------------------------------

package health

import (
	"fmt"
	"time"

	"github.com/campscout/pipeline/internal/models"
)

// Thresholds and delays for the health transitions.
type Config struct {
	// RegenerationThreshold is the generic-failure streak that marks a
	// scraper as needing regeneration.
	RegenerationThreshold int
	// RegenAlertThreshold is the streak at which the needs-regeneration
	// error alert fires.
	RegenAlertThreshold int
	// NotFoundDisableRun is the trailing 404 run that auto-closes a source.
	NotFoundDisableRun int
	// RateLimitDelayHours is the fixed retry delay after a rate-limited
	// failure. Rate limiting is transient and must not compound.
	RateLimitDelayHours int
	// BackoffCapHours caps exponential backoff so a chronically broken
	// source is retried at most weekly rather than abandoned.
	BackoffCapHours int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		RegenerationThreshold: 3,
		RegenAlertThreshold:   5,
		NotFoundDisableRun:    5,
		RateLimitDelayHours:   6,
		BackoffCapHours:       168,
	}
}

// Outcome reports what a failure transition did, for the alerting policy.
type Outcome struct {
	Class               FailureClass
	ConsecutiveFailures int
	// DegradedEdge is true only on the transition to exactly the
	// regeneration threshold, so the degraded alert is edge-triggered.
	DegradedEdge bool
	// NeedsRegenAlert is true when the generic streak has reached the alert
	// threshold.
	NeedsRegenAlert bool
	// AutoClosed is true when this failure's 404 tipped the trailing run and
	// closed the source.
	AutoClosed  bool
	NotFoundRun int
	NextRun     time.Time
}

// Engine applies health transitions to sources.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with the given thresholds.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// ApplyFailure folds a failed run into the source's health record and
// schedules the next attempt. It mutates the source in place; persisting the
// result is the caller's concern.
func (e *Engine) ApplyFailure(src *models.Source, errMsg string, now time.Time) Outcome {
	class := Classify(errMsg)
	h := &src.Health

	prevStreak := h.ConsecutiveFailures

	// Success count carried forward: this run was a failure.
	oldTotal := h.TotalRuns
	h.TotalRuns++
	h.SuccessRate = h.SuccessRate * float64(oldTotal) / float64(h.TotalRuns)

	// Rate limiting is not a scraper defect; the streak is frozen for it.
	if class != FailureRateLimited {
		h.ConsecutiveFailures++
	}

	h.LastFailureAt = &now
	h.LastError = errMsg

	// needsRegeneration is sticky: set here, cleared only by approval of
	// regenerated code. 404 and rate-limit have their own remediation paths.
	if class == FailureGeneric && h.ConsecutiveFailures >= e.cfg.RegenerationThreshold {
		h.NeedsRegeneration = true
	}

	out := Outcome{
		Class:               class,
		ConsecutiveFailures: h.ConsecutiveFailures,
	}

	if class == FailureGeneric {
		out.DegradedEdge = prevStreak < e.cfg.RegenerationThreshold &&
			h.ConsecutiveFailures == e.cfg.RegenerationThreshold
		out.NeedsRegenAlert = h.ConsecutiveFailures >= e.cfg.RegenAlertThreshold
	}

	if class == FailureNotFound {
		src.URLHistory.Append(models.URLCheck{
			URL:       src.URL,
			Status:    models.URLCheckNotFound,
			CheckedAt: now,
		})
		out.NotFoundRun = src.URLHistory.TrailingRun(models.URLCheckNotFound)
		if out.NotFoundRun >= e.cfg.NotFoundDisableRun && src.IsActive {
			src.IsActive = false
			src.ClosureReason = fmt.Sprintf("auto-closed after %d consecutive 404 responses from %s", out.NotFoundRun, src.URL)
			src.ClosedBy = "system"
			out.AutoClosed = true
		}
	}

	out.NextRun = e.nextRunAfterFailure(src, class, now)
	src.NextScheduledScrape = out.NextRun
	src.UpdatedAt = now

	return out
}

// ApplySuccess folds a completed run into the health record. The failure
// streak resets but needsRegeneration stays until new code is approved, so
// noisy sites do not flap between "fine" and "broken".
func (e *Engine) ApplySuccess(src *models.Source, now time.Time) {
	h := &src.Health

	oldTotal := h.TotalRuns
	h.TotalRuns++
	h.SuccessRate = (h.SuccessRate*float64(oldTotal) + 1) / float64(h.TotalRuns)

	h.ConsecutiveFailures = 0
	h.LastSuccessAt = &now
	h.LastError = ""

	// A reachable URL breaks any trailing 404 run.
	src.URLHistory.Append(models.URLCheck{
		URL:       src.URL,
		Status:    models.URLCheckOK,
		CheckedAt: now,
	})

	src.LastScrapedAt = &now
	src.NextScheduledScrape = now.Add(time.Duration(src.ScrapeFrequencyHours) * time.Hour)
	src.UpdatedAt = now
}

// nextRunAfterFailure computes the retry delay for a failed run.
func (e *Engine) nextRunAfterFailure(src *models.Source, class FailureClass, now time.Time) time.Time {
	if class == FailureRateLimited {
		return now.Add(time.Duration(e.cfg.RateLimitDelayHours) * time.Hour)
	}

	delayHours := float64(src.ScrapeFrequencyHours)
	for i := 0; i < src.Health.ConsecutiveFailures; i++ {
		delayHours *= 2
		if delayHours >= float64(e.cfg.BackoffCapHours) {
			delayHours = float64(e.cfg.BackoffCapHours)
			break
		}
	}
	if delayHours > float64(e.cfg.BackoffCapHours) {
		delayHours = float64(e.cfg.BackoffCapHours)
	}

	return now.Add(time.Duration(delayHours * float64(time.Hour)))
}
