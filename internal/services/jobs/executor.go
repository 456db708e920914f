package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/campscout/pipeline/internal/models"
)

// execute runs one production scrape attempt end to end: start the job, run
// the source's scraper, upsert extracted sessions, then complete or fail.
// Failures are absorbed into the ledger transition; nothing propagates up.
func (s *Service) execute(ctx context.Context, jobID, marketID string) {
	job, err := s.Start(ctx, jobID)
	if err != nil {
		// Already started or cleaned up by someone else; nothing to run.
		s.logger.Debug().Err(err).Str("job_id", jobID).Msg("Skipping execution, job not startable")
		return
	}

	source, err := s.storage.SourceStorage().GetSource(ctx, job.SourceID)
	if err != nil {
		s.failQuietly(ctx, jobID, fmt.Sprintf("pre-flight: %v", err))
		return
	}

	if source.ScraperCode == "" {
		s.failQuietly(ctx, jobID, "pre-flight: source has no production scraper")
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	result, err := s.runner.Run(runCtx, source.URL, source.ScraperCode)
	if err != nil {
		s.failQuietly(ctx, jobID, err.Error())
		return
	}

	found := len(result.Sessions)
	created, updated := 0, 0
	for _, raw := range result.Sessions {
		if !raw.HasRequiredFields() {
			continue
		}
		session := models.NewSession(source.ID, marketID, raw)
		wasCreated, err := s.storage.SessionStorage().UpsertSession(ctx, session)
		if err != nil {
			s.logger.Warn().Err(err).Str("source_id", source.ID).Str("name", raw.Name).Msg("Failed to upsert session")
			continue
		}
		if wasCreated {
			created++
		} else {
			updated++
		}
	}

	if err := s.Complete(ctx, jobID, found, created, updated); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to record job completion")
	}
}

// failQuietly records a failure transition, logging rather than propagating
// any bookkeeping error.
func (s *Service) failQuietly(ctx context.Context, jobID, message string) {
	if err := s.Fail(ctx, jobID, message); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to record job failure")
	}
}

// RunTimeout exposes the configured per-execution time box.
func (s *Service) RunTimeout() time.Duration {
	return s.runTimeout
}
