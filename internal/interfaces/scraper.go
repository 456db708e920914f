package interfaces

import (
	"context"

	"github.com/campscout/pipeline/internal/models"
)

// ScrapeResult is what a scraper module returns on success.
type ScrapeResult struct {
	Sessions []models.RawSession
}

// ScraperRunner executes a scraper program against a source URL. The core
// treats the program as opaque; site-specific extraction lives behind this
// interface. On failure the returned error text must surface classifiable
// signals (HTTP 429 / "rate limit", HTTP 404 / "not found") so the health
// engine can fold them into the source's record.
type ScraperRunner interface {
	Run(ctx context.Context, url string, scraperCode string) (*ScrapeResult, error)
}

// RunnerFunc adapts a plain function to ScraperRunner.
type RunnerFunc func(ctx context.Context, url string, scraperCode string) (*ScrapeResult, error)

func (f RunnerFunc) Run(ctx context.Context, url string, scraperCode string) (*ScrapeResult, error) {
	return f(ctx, url, scraperCode)
}
