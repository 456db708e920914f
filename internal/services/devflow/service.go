// -----------------------------------------------------------------------
// Scraper Development Workflow - request -> generate -> test -> feedback ->
// approve cycle producing a trusted scraper program. The workflow layers its
// test runs on the job ledger in dev-test trigger mode and never applies a
// candidate to a live source except through Approve.
// -----------------------------------------------------------------------

package devflow

import (
	"context"
	"fmt"
	"time"

	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/campscout/pipeline/internal/services/jobs"
	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
)

// RequestInput is the payload for starting a development workflow.
type RequestInput struct {
	MarketID         string `validate:"required"`
	OrganizationName string `validate:"required"`
	URL              string `validate:"required,url"`
	// SourceID marks the request as "improve existing scraper" rather than
	// "new site".
	SourceID string
	Notes    string
}

// Options tunes workflow behavior.
type Options struct {
	MaxTestRetries int
	SampleLimit    int
	GenerateTimeout time.Duration
}

// Service implements the scraper development workflow.
type Service struct {
	storage  interfaces.StorageManager
	codegen  interfaces.CodeGenerator
	runner   interfaces.ScraperRunner
	ledger   *jobs.Service
	validate *validator.Validate
	logger   arbor.ILogger

	maxTestRetries  int
	sampleLimit     int
	generateTimeout time.Duration
}

// NewService creates a development workflow service.
func NewService(storage interfaces.StorageManager, codegen interfaces.CodeGenerator, runner interfaces.ScraperRunner, ledger *jobs.Service, opts Options, logger arbor.ILogger) *Service {
	if opts.MaxTestRetries <= 0 {
		opts.MaxTestRetries = models.DefaultMaxTestRetries
	}
	if opts.SampleLimit <= 0 {
		opts.SampleLimit = 5
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = 5 * time.Minute
	}
	return &Service{
		storage:         storage,
		codegen:         codegen,
		runner:          runner,
		ledger:          ledger,
		validate:        validator.New(),
		logger:          logger,
		maxTestRetries:  opts.MaxTestRetries,
		sampleLimit:     opts.SampleLimit,
		generateTimeout: opts.GenerateTimeout,
	}
}

// Request opens a development workflow. When SourceID names an existing
// source with an in-flight request, that request row is reused rather than
// duplicated. New-site requests register a source with no production
// scraper; the scheduler skips it until code is approved.
func (s *Service) Request(ctx context.Context, input *RequestInput) (*models.ScraperDevelopmentRequest, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, &models.ValidationError{Field: "request_input", Reason: err.Error()}
	}

	sourceID := input.SourceID
	if sourceID != "" {
		if _, err := s.storage.SourceStorage().GetSource(ctx, sourceID); err != nil {
			return nil, err
		}

		existing, err := s.storage.RequestStorage().GetActiveRequestForSource(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.Info().
				Str("request_id", existing.ID).
				Str("source_id", sourceID).
				Msg("Reusing in-flight development request")
			return existing, nil
		}
	} else {
		source := models.NewSource("", input.MarketID, input.OrganizationName, input.URL, 24)
		if err := s.storage.SourceStorage().SaveSource(ctx, source); err != nil {
			return nil, fmt.Errorf("failed to register source for development: %w", err)
		}
		sourceID = source.ID
	}

	req := models.NewScraperDevelopmentRequest(input.MarketID, input.OrganizationName, input.URL)
	req.SourceID = sourceID
	req.Notes = input.Notes
	req.MaxTestRetries = s.maxTestRetries

	if err := s.storage.RequestStorage().SaveRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create development request: %w", err)
	}

	s.logger.Info().
		Str("request_id", req.ID).
		Str("source_id", sourceID).
		Str("url", req.URL).
		Msg("Scraper development requested")

	return req, nil
}

// Develop drives generate-and-test cycles until the workflow reaches
// needs_feedback, exhausts its retry budget, or hits a generation error.
// The needs_feedback state is an indefinite wait for a human and does not
// count against any budget.
func (s *Service) Develop(ctx context.Context, requestID string) error {
	for {
		req, err := s.storage.RequestStorage().GetRequest(ctx, requestID)
		if err != nil {
			return err
		}

		switch req.Status {
		case models.RequestStatusPending, models.RequestStatusInProgress:
			if err := s.runCycle(ctx, req); err != nil {
				return err
			}
		case models.RequestStatusNeedsFeedback, models.RequestStatusCompleted:
			return nil
		case models.RequestStatusFailed:
			return &models.RetryBudgetExhaustedError{RequestID: requestID, Retries: req.TestRetryCount}
		default:
			return &models.InvalidStateError{Entity: "development request", ID: requestID, From: string(req.Status), To: "in_progress"}
		}
	}
}

// runCycle performs one generate -> test -> evaluate iteration.
func (s *Service) runCycle(ctx context.Context, req *models.ScraperDevelopmentRequest) error {
	if s.codegen == nil {
		return fmt.Errorf("no code generator configured; cannot develop scrapers")
	}

	now := time.Now().UTC()
	req.Status = models.RequestStatusInProgress
	req.UpdatedAt = now
	if err := s.storage.RequestStorage().SaveRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to mark request in progress: %w", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, s.generateTimeout)
	code, err := s.codegen.GenerateScraper(genCtx, &interfaces.GenerationInput{
		URL:              req.URL,
		OrganizationName: req.OrganizationName,
		Notes:            req.Notes,
		PreviousCode:     req.GeneratedScraperCode,
		FeedbackHistory:  req.FeedbackHistory,
		LastTestError:    req.LastTestError,
	})
	cancel()
	if err != nil {
		// Generation errors leave the request in_progress; the cycle can be
		// re-driven once the collaborator recovers.
		s.logger.Error().Err(err).Str("request_id", req.ID).Msg("Scraper code generation failed")
		return fmt.Errorf("code generation failed: %w", err)
	}

	// Candidate stored verbatim; the version increments exactly once per
	// regeneration.
	req.GeneratedScraperCode = code
	req.ScraperVersion++
	req.Status = models.RequestStatusTesting
	req.UpdatedAt = time.Now().UTC()
	if err := s.storage.RequestStorage().SaveRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to store candidate code: %w", err)
	}

	s.logger.Info().
		Str("request_id", req.ID).
		Int("version", req.ScraperVersion).
		Msg("Candidate scraper generated, testing")

	return s.testCandidate(ctx, req)
}

// testCandidate runs the candidate through a dev-test ledger job and
// evaluates the result.
func (s *Service) testCandidate(ctx context.Context, req *models.ScraperDevelopmentRequest) error {
	job, err := s.ledger.CreateDevTest(ctx, req.SourceID, req.ID)
	if err != nil {
		return fmt.Errorf("failed to create dev-test job: %w", err)
	}
	if _, err := s.ledger.Start(ctx, job.ID); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, s.ledger.RunTimeout())
	result, runErr := s.runner.Run(runCtx, req.URL, req.GeneratedScraperCode)
	cancel()

	now := time.Now().UTC()
	req.LastTestRun = &now

	if runErr != nil {
		if err := s.ledger.Fail(ctx, job.ID, runErr.Error()); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record dev-test failure")
		}
		req.LastTestError = runErr.Error()
		req.LastTestSessionsFound = 0
		req.LastTestSampleData = ""
		return s.recordTestMiss(ctx, req)
	}

	found := len(result.Sessions)
	sampleOK, sample := evaluateSample(result.Sessions, s.sampleLimit)

	if err := s.ledger.Complete(ctx, job.ID, found, 0, 0); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record dev-test completion")
	}

	req.LastTestError = ""
	req.LastTestSessionsFound = found
	req.LastTestSampleData = sample

	if found > 0 && sampleOK {
		// A human must eyeball real extracted data before the candidate is
		// trusted; the workflow never auto-approves.
		req.Status = models.RequestStatusNeedsFeedback
		req.UpdatedAt = time.Now().UTC()
		if err := s.storage.RequestStorage().SaveRequest(ctx, req); err != nil {
			return fmt.Errorf("failed to save request after test: %w", err)
		}
		s.logger.Info().
			Str("request_id", req.ID).
			Int("sessions_found", found).
			Msg("Dev test passed, awaiting human feedback")
		return nil
	}

	if found == 0 {
		req.LastTestError = "test run extracted zero sessions"
	} else {
		req.LastTestError = "test run extracted records missing required fields"
	}
	return s.recordTestMiss(ctx, req)
}

// recordTestMiss increments the retry budget and either loops the workflow
// back to in_progress or fails it when the ceiling is reached.
func (s *Service) recordTestMiss(ctx context.Context, req *models.ScraperDevelopmentRequest) error {
	req.TestRetryCount++
	now := time.Now().UTC()
	req.UpdatedAt = now

	if req.TestRetryCount >= req.MaxTestRetries {
		req.Status = models.RequestStatusFailed
		req.FailureReason = fmt.Sprintf("exhausted %d test attempts: %s", req.TestRetryCount, req.LastTestError)
		if err := s.storage.RequestStorage().SaveRequest(ctx, req); err != nil {
			return fmt.Errorf("failed to save failed request: %w", err)
		}
		s.logger.Warn().
			Str("request_id", req.ID).
			Int("retries", req.TestRetryCount).
			Msg("Development request failed, retry budget exhausted")
		return nil
	}

	req.Status = models.RequestStatusInProgress
	if err := s.storage.RequestStorage().SaveRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to save request for retry: %w", err)
	}

	s.logger.Info().
		Str("request_id", req.ID).
		Int("retry", req.TestRetryCount).
		Int("budget", req.MaxTestRetries).
		Msg("Dev test missed, regenerating")

	return nil
}

// SubmitFeedback records a review note and loops the workflow back to
// regeneration. Valid only from needs_feedback.
func (s *Service) SubmitFeedback(ctx context.Context, requestID, text string) error {
	if text == "" {
		return &models.ValidationError{Field: "feedback_text", Reason: "feedback text is required"}
	}

	req, err := s.storage.RequestStorage().GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != models.RequestStatusNeedsFeedback {
		return &models.InvalidStateError{Entity: "development request", ID: requestID, From: string(req.Status), To: string(models.RequestStatusInProgress)}
	}

	now := time.Now().UTC()
	req.AppendFeedback(text, now)
	req.Status = models.RequestStatusInProgress
	req.UpdatedAt = now

	if err := s.storage.RequestStorage().SaveRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}

	s.logger.Info().
		Str("request_id", requestID).
		Int("version", req.ScraperVersion).
		Msg("Feedback submitted, regeneration queued")

	return nil
}

// Approve promotes the candidate to the source's production scraper and
// completes the workflow. This is the only write path from an untrusted
// candidate to production. Valid only from needs_feedback.
func (s *Service) Approve(ctx context.Context, requestID string) error {
	req, err := s.storage.RequestStorage().GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != models.RequestStatusNeedsFeedback {
		return &models.InvalidStateError{Entity: "development request", ID: requestID, From: string(req.Status), To: string(models.RequestStatusCompleted)}
	}

	source, err := s.storage.SourceStorage().GetSource(ctx, req.SourceID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	source.ScraperCode = req.GeneratedScraperCode
	source.ScraperVersion = req.ScraperVersion
	source.Health.NeedsRegeneration = false
	source.NextScheduledScrape = now
	source.UpdatedAt = now

	if err := s.storage.SourceStorage().SaveSource(ctx, source); err != nil {
		return fmt.Errorf("failed to promote scraper to source: %w", err)
	}

	req.Status = models.RequestStatusCompleted
	req.UpdatedAt = now
	if err := s.storage.RequestStorage().SaveRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to complete request: %w", err)
	}

	s.logger.Info().
		Str("request_id", requestID).
		Str("source_id", source.ID).
		Int("version", req.ScraperVersion).
		Msg("Scraper code approved and promoted to production")

	return nil
}

// MarkFailed is the administrative override for a workflow the automated
// loop cannot resolve. Valid from any non-terminal state.
func (s *Service) MarkFailed(ctx context.Context, requestID, reason string) error {
	req, err := s.storage.RequestStorage().GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status.IsTerminal() {
		return &models.InvalidStateError{Entity: "development request", ID: requestID, From: string(req.Status), To: string(models.RequestStatusFailed)}
	}

	req.Status = models.RequestStatusFailed
	req.FailureReason = reason
	req.UpdatedAt = time.Now().UTC()

	if err := s.storage.RequestStorage().SaveRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to mark request failed: %w", err)
	}

	s.logger.Warn().Str("request_id", requestID).Str("reason", reason).Msg("Development request manually failed")
	return nil
}

// ForceRestart unsticks a workflow. With clearCode the candidate is
// discarded and the request returns to pending as if starting over;
// otherwise it returns to in_progress keeping the current code as the base
// for regeneration. Valid from any non-terminal state.
func (s *Service) ForceRestart(ctx context.Context, requestID string, clearCode bool) error {
	req, err := s.storage.RequestStorage().GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status.IsTerminal() {
		return &models.InvalidStateError{Entity: "development request", ID: requestID, From: string(req.Status), To: string(models.RequestStatusPending)}
	}

	if clearCode {
		req.GeneratedScraperCode = ""
		req.Status = models.RequestStatusPending
	} else {
		req.Status = models.RequestStatusInProgress
	}
	req.TestRetryCount = 0
	req.LastTestError = ""
	req.UpdatedAt = time.Now().UTC()

	if err := s.storage.RequestStorage().SaveRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to restart request: %w", err)
	}

	s.logger.Info().
		Str("request_id", requestID).
		Bool("clear_code", clearCode).
		Msg("Development request force-restarted")

	return nil
}
