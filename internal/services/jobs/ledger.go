// -----------------------------------------------------------------------
// Job Ledger - one row per scrape attempt, strict state transitions:
//
//	(none) --create--> pending --start--> running --complete--> completed
//	                                   \--fail-----> failed
//	pending --fail--> failed   (pre-flight abort)
//
// At most one pending and one running job per source. The guard is a
// read-check-then-insert precondition, not a lock; a lost race produces a
// duplicate job and downstream session upserts absorb it.
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/campscout/pipeline/internal/alerts"
	"github.com/campscout/pipeline/internal/common"
	"github.com/campscout/pipeline/internal/health"
	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/ternarybob/arbor"
)

// Service implements the job ledger.
type Service struct {
	storage interfaces.StorageManager
	engine  *health.Engine
	alerts  *alerts.Service
	events  interfaces.EventService
	runner  interfaces.ScraperRunner
	logger  arbor.ILogger

	jitterMax  time.Duration
	runTimeout time.Duration
}

// Options tunes ledger behavior.
type Options struct {
	// JitterMax bounds the random delay before async execution starts. The
	// jitter desynchronizes bookkeeping writes when many jobs are created in
	// the same instant; it carries no ordering guarantee.
	JitterMax  time.Duration
	RunTimeout time.Duration
}

// NewService creates a job ledger service.
func NewService(storage interfaces.StorageManager, engine *health.Engine, alertSvc *alerts.Service, events interfaces.EventService, runner interfaces.ScraperRunner, opts Options, logger arbor.ILogger) *Service {
	if opts.JitterMax <= 0 {
		opts.JitterMax = 500 * time.Millisecond
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 10 * time.Minute
	}
	return &Service{
		storage:    storage,
		engine:     engine,
		alerts:     alertSvc,
		events:     events,
		runner:     runner,
		logger:     logger,
		jitterMax:  opts.JitterMax,
		runTimeout: opts.RunTimeout,
	}
}

// Create opens a pending job for a source and dispatches asynchronous
// execution. Returns ConflictError when a pending or running job already
// exists; callers should treat that as "already in progress", and a lost
// race between the check and the insert as retryable.
func (s *Service) Create(ctx context.Context, sourceID, triggeredBy string) (*models.ScrapeJob, error) {
	source, err := s.storage.SourceStorage().GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	inFlight, err := s.storage.JobStorage().ListInFlight(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to check in-flight jobs: %w", err)
	}
	if len(inFlight) > 0 {
		return nil, &models.ConflictError{SourceID: sourceID}
	}

	job := models.NewScrapeJob(sourceID, triggeredBy)
	if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("source_id", sourceID).
		Str("triggered_by", triggeredBy).
		Msg("Scrape job created")

	jitter := time.Duration(rand.Int63n(int64(s.jitterMax)))
	common.SafeGo(s.logger, "executeScrapeJob", func() {
		time.Sleep(jitter)
		s.execute(context.Background(), job.ID, source.MarketID)
	})

	return job, nil
}

// CreateDevTest opens a pending dev-test job linked to a development
// request. The devflow drives start/complete/fail around its own candidate
// execution, so no automatic dispatch happens here.
func (s *Service) CreateDevTest(ctx context.Context, sourceID, devRequestID string) (*models.ScrapeJob, error) {
	inFlight, err := s.storage.JobStorage().ListInFlight(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to check in-flight jobs: %w", err)
	}
	if len(inFlight) > 0 {
		return nil, &models.ConflictError{SourceID: sourceID}
	}

	job := models.NewScrapeJob(sourceID, models.TriggerDevTest)
	job.DevRequestID = devRequestID
	if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create dev-test job: %w", err)
	}

	return job, nil
}

// Start moves a pending job to running.
func (s *Service) Start(ctx context.Context, jobID string) (*models.ScrapeJob, error) {
	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if !job.CanTransition(models.JobStatusRunning) {
		err := &models.InvalidStateError{Entity: "job", ID: jobID, From: string(job.Status), To: string(models.JobStatusRunning)}
		s.logger.Error().Err(err).Msg("Job transition rejected - single-flight invariant may be violated")
		return nil, err
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusRunning
	job.StartedAt = &now

	if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to start job: %w", err)
	}
	return job, nil
}

// Complete moves a running job to completed and folds the success into the
// source's health record. When sessions were created or updated it schedules
// a downstream market-aggregate recompute, fire-and-forget; duplicate
// recomputes are idempotent on the consumer side.
func (s *Service) Complete(ctx context.Context, jobID string, found, created, updated int) error {
	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if !job.CanTransition(models.JobStatusCompleted) {
		err := &models.InvalidStateError{Entity: "job", ID: jobID, From: string(job.Status), To: string(models.JobStatusCompleted)}
		s.logger.Error().Err(err).Msg("Job transition rejected - single-flight invariant may be violated")
		return err
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &now
	job.SessionsFound = found
	job.SessionsCreated = created
	job.SessionsUpdated = updated

	// The status transition is the authoritative fact; persist it first.
	if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	// Dev-test runs exercise an untrusted candidate; they never touch the
	// production health record or the market rollup.
	if job.TriggeredBy == models.TriggerDevTest {
		return nil
	}

	source, err := s.storage.SourceStorage().GetSource(ctx, job.SourceID)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Job completed but source lookup failed; health not updated")
		return nil
	}

	s.engine.ApplySuccess(source, now)
	if err := s.storage.SourceStorage().SaveSource(ctx, source); err != nil {
		s.logger.Warn().Err(err).Str("source_id", source.ID).Msg("Job completed but health update failed")
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("source_id", source.ID).
		Int("found", found).
		Int("created", created).
		Int("updated", updated).
		Msg("Scrape job completed")

	if created+updated > 0 && s.events != nil {
		if err := s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventAggregateRecompute,
			Payload: source.MarketID,
		}); err != nil {
			s.logger.Warn().Err(err).Str("market_id", source.MarketID).Msg("Failed to publish aggregate recompute")
		}
	}
	if s.events != nil {
		_ = s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventJobCompleted, Payload: job})
	}

	return nil
}

// Fail moves a pending or running job to failed and delegates health and
// alert bookkeeping. Health and alert updates are best-effort derived facts:
// an error there degrades to a logged warning, never loses the transition.
func (s *Service) Fail(ctx context.Context, jobID, errorMessage string) error {
	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if !job.CanTransition(models.JobStatusFailed) {
		err := &models.InvalidStateError{Entity: "job", ID: jobID, From: string(job.Status), To: string(models.JobStatusFailed)}
		s.logger.Error().Err(err).Msg("Job transition rejected - single-flight invariant may be violated")
		return err
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusFailed
	job.CompletedAt = &now
	job.ErrorMessage = errorMessage

	if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}

	s.logger.Warn().
		Str("job_id", jobID).
		Str("source_id", job.SourceID).
		Str("error", errorMessage).
		Msg("Scrape job failed")

	// Dev-test failures belong to the development workflow, not to the
	// production health record.
	if job.TriggeredBy == models.TriggerDevTest {
		return nil
	}

	source, err := s.storage.SourceStorage().GetSource(ctx, job.SourceID)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Job failed but source lookup failed; health not updated")
		return nil
	}

	outcome := s.engine.ApplyFailure(source, errorMessage, now)
	if err := s.storage.SourceStorage().SaveSource(ctx, source); err != nil {
		s.logger.Warn().Err(err).Str("source_id", source.ID).Msg("Job failed but health update could not be persisted")
		return nil
	}

	if s.alerts != nil {
		if _, err := s.alerts.RecordFailure(ctx, source, outcome); err != nil {
			s.logger.Warn().Err(err).Str("source_id", source.ID).Msg("Failed to record alert for failure")
		}
	}

	if s.events != nil {
		_ = s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventJobFailed, Payload: job})
	}

	return nil
}

// ListStuck returns the in-flight jobs for a source so operators can see
// dangling rows left by a crashed worker.
func (s *Service) ListStuck(ctx context.Context, sourceID string) ([]*models.ScrapeJob, error) {
	return s.storage.JobStorage().ListInFlight(ctx, sourceID)
}

// CleanupStuck force-fails every pending and running job for a source. This
// is an explicit operator action for rows left dangling by a crashed worker;
// it is never triggered automatically, and it bypasses the health engine
// because a worker crash says nothing about the scraper itself.
func (s *Service) CleanupStuck(ctx context.Context, sourceID string) (int, error) {
	inFlight, err := s.storage.JobStorage().ListInFlight(ctx, sourceID)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	cleaned := 0
	for _, job := range inFlight {
		job.Status = models.JobStatusFailed
		job.CompletedAt = &now
		job.ErrorMessage = "force-failed by operator cleanup"
		if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
			return cleaned, fmt.Errorf("failed to clean up job %s: %w", job.ID, err)
		}
		cleaned++
	}

	if cleaned > 0 {
		s.logger.Warn().
			Str("source_id", sourceID).
			Int("count", cleaned).
			Msg("Stuck jobs force-failed by operator cleanup")
	}

	return cleaned, nil
}
