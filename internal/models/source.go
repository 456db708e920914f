package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScraperHealth is the rolling health record for a source's scraper.
// SuccessfulRuns is always derived from SuccessRate*TotalRuns, never stored,
// so the two cannot drift. All mutation happens inside the health engine's
// failure/success transitions; no other code path may patch these fields.
type ScraperHealth struct {
	ConsecutiveFailures int        `json:"consecutive_failures"`
	TotalRuns           int        `json:"total_runs"`
	SuccessRate         float64    `json:"success_rate"` // 0..1
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	NeedsRegeneration   bool       `json:"needs_regeneration"`
}

// SuccessfulRuns derives the success count from the stored rate.
func (h *ScraperHealth) SuccessfulRuns() int {
	return int(h.SuccessRate*float64(h.TotalRuns) + 0.5)
}

// Source is one scrapeable organization website and its operating parameters.
// Sources are never hard-deleted while referenced by sessions; they are
// soft-closed with a closure reason instead.
type Source struct {
	ID             string `json:"id" badgerhold:"key"`
	OrganizationID string `json:"organization_id"`
	MarketID       string `json:"market_id"`
	Name           string `json:"name"`
	URL            string `json:"url"`

	IsActive      bool   `json:"is_active"`
	ClosureReason string `json:"closure_reason,omitempty"`
	ClosedBy      string `json:"closed_by,omitempty"`

	ScrapeFrequencyHours int        `json:"scrape_frequency_hours"`
	NextScheduledScrape  time.Time  `json:"next_scheduled_scrape"`
	LastScrapedAt        *time.Time `json:"last_scraped_at,omitempty"`

	// ScraperCode is the production scraper program. It is written only by
	// source registration seeds and by devflow approval.
	ScraperCode    string `json:"scraper_code,omitempty"`
	ScraperVersion int    `json:"scraper_version"`

	Health     ScraperHealth `json:"scraper_health"`
	URLHistory URLHistory    `json:"url_history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSource creates a source scheduled for an immediate first scrape.
func NewSource(organizationID, marketID, name, url string, frequencyHours int) *Source {
	now := time.Now().UTC()
	return &Source{
		ID:                   "src_" + uuid.New().String(),
		OrganizationID:       organizationID,
		MarketID:             marketID,
		Name:                 name,
		URL:                  url,
		IsActive:             true,
		ScrapeFrequencyHours: frequencyHours,
		NextScheduledScrape:  now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// Validate checks the source's required fields and bounds.
func (s *Source) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &ValidationError{Field: "name", Reason: "source name is required"}
	}
	if strings.TrimSpace(s.URL) == "" {
		return &ValidationError{Field: "url", Reason: "source URL is required"}
	}
	if s.MarketID == "" {
		return &ValidationError{Field: "market_id", Reason: "market reference is required"}
	}
	if s.ScrapeFrequencyHours <= 0 {
		return &ValidationError{Field: "scrape_frequency_hours", Reason: "frequency must be positive"}
	}
	return nil
}

// Close soft-disables the source. A closure always carries a readable reason.
func (s *Source) Close(reason, closedBy string) error {
	if strings.TrimSpace(reason) == "" {
		return &ValidationError{Field: "closure_reason", Reason: "closing a source requires a reason"}
	}
	s.IsActive = false
	s.ClosureReason = reason
	s.ClosedBy = closedBy
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Reopen re-enables a closed source and schedules an immediate scrape.
func (s *Source) Reopen() {
	s.IsActive = true
	s.ClosureReason = ""
	s.ClosedBy = ""
	s.NextScheduledScrape = time.Now().UTC()
	s.UpdatedAt = time.Now().UTC()
}

// String implements fmt.Stringer for log output.
func (s *Source) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.URL)
}
