package models

import "time"

// PipelineHealth is the dashboard coloring for a market's pipeline.
type PipelineHealth string

const (
	PipelineHealthGood     PipelineHealth = "good"
	PipelineHealthWarning  PipelineHealth = "warning"
	PipelineHealthCritical PipelineHealth = "critical"
)

// ScraperCounts buckets a market's sources by scraper health.
type ScraperCounts struct {
	Total      int `json:"total"`
	Healthy    int `json:"healthy"`
	Failing    int `json:"failing"`
	PendingDev int `json:"pending_dev"`
	Disabled   int `json:"disabled"`
}

// SessionCounts summarizes a market's session inventory.
type SessionCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// PipelineStatus is the read-only per-market rollup used for dashboards.
// Percentage fields default to 0 when their denominators are 0 so a freshly
// created market renders without division errors.
type PipelineStatus struct {
	MarketID string `json:"market_id" badgerhold:"key"`

	SourceCount             int     `json:"source_count"`
	SourcesWithScraper      int     `json:"sources_with_scraper"`
	ScraperCoveragePercent  float64 `json:"scraper_coverage_percent"`
	AverageSuccessRate      float64 `json:"average_success_rate"`
	SourcesNeedRegeneration int     `json:"sources_need_regeneration"`

	Scrapers ScraperCounts `json:"scrapers"`
	Sessions SessionCounts `json:"sessions"`

	OverallHealth PipelineHealth `json:"overall_health"`
	ComputedAt    time.Time      `json:"computed_at"`
}
