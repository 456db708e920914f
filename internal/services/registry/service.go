// -----------------------------------------------------------------------
// Source Registry - durable record of each scrapeable website and its
// operating parameters. Every operation is a validated patch; the health
// record itself is owned by the job ledger's transitions.
// -----------------------------------------------------------------------

package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
)

// RegisterInput is the payload for registering a new source.
type RegisterInput struct {
	OrganizationID string `validate:"required"`
	MarketID       string `validate:"required"`
	Name           string `validate:"required"`
	URL            string `validate:"required,url"`
	FrequencyHours int    `validate:"omitempty,gt=0"`
}

// Service implements the source registry operations.
type Service struct {
	storage               interfaces.SourceStorage
	validate              *validator.Validate
	defaultFrequencyHours int
	logger                arbor.ILogger
}

// NewService creates a source registry service.
func NewService(storage interfaces.SourceStorage, defaultFrequencyHours int, logger arbor.ILogger) *Service {
	return &Service{
		storage:               storage,
		validate:              validator.New(),
		defaultFrequencyHours: defaultFrequencyHours,
		logger:                logger,
	}
}

// Register creates a new active source scheduled for an immediate scrape.
func (s *Service) Register(ctx context.Context, input *RegisterInput) (*models.Source, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, &models.ValidationError{Field: "register_input", Reason: err.Error()}
	}

	freq := input.FrequencyHours
	if freq <= 0 {
		freq = s.defaultFrequencyHours
	}

	source := models.NewSource(input.OrganizationID, input.MarketID, input.Name, input.URL, freq)
	if err := s.storage.SaveSource(ctx, source); err != nil {
		return nil, fmt.Errorf("failed to register source: %w", err)
	}

	s.logger.Info().
		Str("source_id", source.ID).
		Str("url", source.URL).
		Int("frequency_hours", freq).
		Msg("Source registered")

	return source, nil
}

// CloseSource soft-disables a source. A closure always carries a reason;
// sources are never silently disabled.
func (s *Service) CloseSource(ctx context.Context, sourceID, reason, closedBy string) error {
	source, err := s.storage.GetSource(ctx, sourceID)
	if err != nil {
		return err
	}

	if err := source.Close(reason, closedBy); err != nil {
		return err
	}

	if err := s.storage.SaveSource(ctx, source); err != nil {
		return fmt.Errorf("failed to close source: %w", err)
	}

	s.logger.Info().
		Str("source_id", sourceID).
		Str("reason", reason).
		Str("closed_by", closedBy).
		Msg("Source closed")

	return nil
}

// ReopenSource re-enables a closed source and schedules an immediate scrape.
// Reopening is always an explicit action; auto-disabled sources are never
// re-enabled automatically.
func (s *Service) ReopenSource(ctx context.Context, sourceID string) error {
	source, err := s.storage.GetSource(ctx, sourceID)
	if err != nil {
		return err
	}

	source.Reopen()

	if err := s.storage.SaveSource(ctx, source); err != nil {
		return fmt.Errorf("failed to reopen source: %w", err)
	}

	s.logger.Info().Str("source_id", sourceID).Msg("Source reopened")
	return nil
}

// UpdateSchedule changes a source's base scrape interval and reschedules the
// next run from now.
func (s *Service) UpdateSchedule(ctx context.Context, sourceID string, frequencyHours int) error {
	if frequencyHours <= 0 {
		return &models.ValidationError{Field: "frequency_hours", Reason: "frequency must be positive"}
	}

	source, err := s.storage.GetSource(ctx, sourceID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	source.ScrapeFrequencyHours = frequencyHours
	source.NextScheduledScrape = now.Add(time.Duration(frequencyHours) * time.Hour)
	source.UpdatedAt = now

	if err := s.storage.SaveSource(ctx, source); err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}

	s.logger.Info().
		Str("source_id", sourceID).
		Int("frequency_hours", frequencyHours).
		Msg("Source schedule updated")

	return nil
}
