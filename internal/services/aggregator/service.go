// -----------------------------------------------------------------------
// Pipeline Aggregator - read-side per-market rollup used for dashboards.
// Recomputes are triggered by job completions through the event bus and are
// idempotent under at-least-once delivery; the snapshot is derived entirely
// from source and session rows and has no write path of its own.
// -----------------------------------------------------------------------

package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/ternarybob/arbor"
)

// Service computes per-market pipeline status snapshots.
type Service struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewService creates a pipeline aggregator.
func NewService(storage interfaces.StorageManager, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// Subscribe registers the aggregator on the event bus.
func (s *Service) Subscribe(events interfaces.EventService) error {
	return events.Subscribe(interfaces.EventAggregateRecompute, s.handleRecompute)
}

func (s *Service) handleRecompute(ctx context.Context, event interfaces.Event) error {
	marketID, ok := event.Payload.(string)
	if !ok || marketID == "" {
		return fmt.Errorf("aggregate recompute event carries no market id")
	}

	if _, err := s.Recompute(ctx, marketID); err != nil {
		return err
	}
	return nil
}

// Recompute builds and persists a fresh snapshot for a market. Percentage
// fields default to 0 when their denominators are 0 so a freshly created
// market with no sources renders cleanly.
func (s *Service) Recompute(ctx context.Context, marketID string) (*models.PipelineStatus, error) {
	sources, err := s.storage.SourceStorage().ListSourcesByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources for market %s: %w", marketID, err)
	}

	status := &models.PipelineStatus{
		MarketID:   marketID,
		ComputedAt: time.Now().UTC(),
	}

	var rateSum float64
	var rateCount int

	for _, source := range sources {
		status.SourceCount++
		status.Scrapers.Total++

		if source.ScraperCode != "" {
			status.SourcesWithScraper++
		}
		if source.Health.NeedsRegeneration {
			status.SourcesNeedRegeneration++
		}
		if source.Health.TotalRuns > 0 {
			rateSum += source.Health.SuccessRate
			rateCount++
		}

		switch {
		case !source.IsActive:
			status.Scrapers.Disabled++
		case source.ScraperCode == "":
			status.Scrapers.PendingDev++
		case source.Health.ConsecutiveFailures > 0 || source.Health.NeedsRegeneration:
			status.Scrapers.Failing++
		default:
			status.Scrapers.Healthy++
		}
	}

	if status.SourceCount > 0 {
		status.ScraperCoveragePercent = float64(status.SourcesWithScraper) / float64(status.SourceCount) * 100
	}
	if rateCount > 0 {
		status.AverageSuccessRate = rateSum / float64(rateCount)
	}

	total, active, err := s.storage.SessionStorage().CountSessionsByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions for market %s: %w", marketID, err)
	}
	status.Sessions = models.SessionCounts{Total: total, Active: active}

	status.OverallHealth = classifyHealth(status)

	if err := s.storage.StatusStorage().SaveStatus(ctx, status); err != nil {
		return nil, fmt.Errorf("failed to persist pipeline status: %w", err)
	}

	s.logger.Debug().
		Str("market_id", marketID).
		Int("sources", status.SourceCount).
		Str("health", string(status.OverallHealth)).
		Msg("Pipeline status recomputed")

	return status, nil
}

// GetStatus returns the latest persisted snapshot for a market, computing
// one on the fly when none exists yet.
func (s *Service) GetStatus(ctx context.Context, marketID string) (*models.PipelineStatus, error) {
	status, err := s.storage.StatusStorage().GetStatus(ctx, marketID)
	if err == nil {
		return status, nil
	}

	var notFound *models.NotFoundError
	if errors.As(err, &notFound) {
		return s.Recompute(ctx, marketID)
	}
	return nil, err
}

// classifyHealth derives the dashboard coloring. A market with no sources is
// good; nothing has gone wrong yet. Sources stuck needing regeneration or a
// market whose sources produce no active sessions at all pull it to
// critical; any failing or unbuilt scraper pulls it to warning.
func classifyHealth(status *models.PipelineStatus) models.PipelineHealth {
	if status.SourceCount == 0 {
		return models.PipelineHealthGood
	}

	if status.SourcesNeedRegeneration > 0 || status.Scrapers.Disabled == status.SourceCount {
		return models.PipelineHealthCritical
	}
	if status.SourcesWithScraper > 0 && status.Sessions.Active == 0 {
		return models.PipelineHealthCritical
	}

	if status.Scrapers.Failing > 0 || status.Scrapers.PendingDev > 0 || status.Scrapers.Disabled > 0 {
		return models.PipelineHealthWarning
	}

	return models.PipelineHealthGood
}
