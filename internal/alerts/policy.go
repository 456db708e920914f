// -----------------------------------------------------------------------
// Alerting Policy - derives operator alerts from health-record transitions.
// At most one alert per failure; rate-limit and auto-disable outcomes are
// mutually exclusive with the consecutive-failure alerts because those error
// classes freeze the streak counters.
// -----------------------------------------------------------------------

package alerts

import (
	"context"
	"fmt"

	"github.com/campscout/pipeline/internal/health"
	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/ternarybob/arbor"
)

// Derive maps a failure outcome to the single alert it warrants, or nil.
// Pure function so the policy is testable without storage.
func Derive(src *models.Source, out health.Outcome) *models.Alert {
	switch {
	case out.Class == health.FailureRateLimited:
		// Visibility/trend-spotting only, not actionable.
		return models.NewAlert(src.ID, models.AlertRateLimited, models.SeverityInfo,
			fmt.Sprintf("%s is rate limiting scrape requests", src.URL))

	case out.AutoClosed:
		return models.NewAlert(src.ID, models.AlertScraperDisabled, models.SeverityError,
			fmt.Sprintf("source auto-disabled after %d consecutive 404 responses from %s", out.NotFoundRun, src.URL))

	case out.NeedsRegenAlert:
		return models.NewAlert(src.ID, models.AlertNeedsRegeneration, models.SeverityError,
			fmt.Sprintf("scraper for %s has failed %d times in a row and needs regeneration", src.Name, out.ConsecutiveFailures))

	case out.DegradedEdge:
		return models.NewAlert(src.ID, models.AlertScraperDegraded, models.SeverityWarning,
			fmt.Sprintf("scraper for %s has degraded: %d consecutive failures", src.Name, out.ConsecutiveFailures))
	}

	return nil
}

// Service persists derived alerts and announces them on the event bus.
type Service struct {
	storage interfaces.AlertStorage
	events  interfaces.EventService
	logger  arbor.ILogger
}

// NewService creates an alerting service.
func NewService(storage interfaces.AlertStorage, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		events:  events,
		logger:  logger,
	}
}

// RecordFailure creates whichever alert the outcome warrants. Returns the
// created alert, or nil when the failure was unremarkable.
func (s *Service) RecordFailure(ctx context.Context, src *models.Source, out health.Outcome) (*models.Alert, error) {
	alert := Derive(src, out)
	if alert == nil {
		return nil, nil
	}

	if err := s.storage.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	s.logger.Warn().
		Str("source_id", src.ID).
		Str("alert_type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Msg(alert.Message)

	if s.events != nil {
		if err := s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventAlertCreated,
			Payload: alert,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish alert event")
		}
	}

	return alert, nil
}

// Acknowledge marks an alert as seen by an operator.
func (s *Service) Acknowledge(ctx context.Context, alertID, acknowledgedBy string) error {
	alert, err := s.storage.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert.AcknowledgedAt != nil {
		return nil
	}

	alert.Acknowledge(acknowledgedBy, timeNow())

	if err := s.storage.SaveAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	s.logger.Info().
		Str("alert_id", alertID).
		Str("acknowledged_by", acknowledgedBy).
		Msg("Alert acknowledged")

	return nil
}
