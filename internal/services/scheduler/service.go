// -----------------------------------------------------------------------
// Scheduler - periodic scan that enqueues a scrape job for every active
// source whose next scheduled time has arrived. The scan is the only
// automatic job producer; manual and dev-test triggers go straight to the
// ledger.
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/campscout/pipeline/internal/services/jobs"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// Service implements the due-source scan loop.
type Service struct {
	sources interfaces.SourceStorage
	ledger  *jobs.Service
	cron    *cron.Cron
	limiter *rate.Limiter
	logger  arbor.ILogger

	mu           sync.Mutex
	running      bool
	isProcessing bool
}

// NewService creates a scheduler. dispatchRate caps schedule-triggered job
// creations per second so a scan that finds many due sources does not flood
// the executor.
func NewService(sources interfaces.SourceStorage, ledger *jobs.Service, dispatchRate float64, dispatchBurst int, logger arbor.ILogger) *Service {
	if dispatchRate <= 0 {
		dispatchRate = 5
	}
	if dispatchBurst <= 0 {
		dispatchBurst = 10
	}
	return &Service{
		sources: sources,
		ledger:  ledger,
		cron:    cron.New(),
		limiter: rate.NewLimiter(rate.Limit(dispatchRate), dispatchBurst),
		logger:  logger,
	}
}

// Start begins the scan loop with the given cron expression.
func (s *Service) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if cronExpr == "" {
		cronExpr = "*/1 * * * *"
	}

	if _, err := s.cron.AddFunc(cronExpr, s.runScan); err != nil {
		return fmt.Errorf("failed to add scan job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Str("cron_expr", cronExpr).Msg("Scheduler started")
	return nil
}

// Stop halts the scan loop and waits for an in-progress scan to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// runScan is the cron entry point. Overlapping scans are skipped rather than
// queued; the next tick picks up whatever this one missed.
func (s *Service) runScan() {
	s.mu.Lock()
	if s.isProcessing {
		s.mu.Unlock()
		s.logger.Debug().Msg("Previous scan still in progress, skipping")
		return
	}
	s.isProcessing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isProcessing = false
		s.mu.Unlock()
	}()

	if err := s.ScanOnce(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("Due-source scan failed")
	}
}

// ScanOnce enqueues one scrape job per due source. Sources without an
// approved scraper are skipped; their first production scrape is scheduled
// by code approval. A ConflictError means the source is already in flight
// and is not an error of the scan.
func (s *Service) ScanOnce(ctx context.Context) error {
	now := time.Now().UTC()

	due, err := s.sources.ListDueSources(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due sources: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Debug().Int("due", len(due)).Msg("Due-source scan found work")

	enqueued, skipped := 0, 0
	for _, source := range due {
		if source.ScraperCode == "" {
			skipped++
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("dispatch limiter interrupted: %w", err)
		}

		if _, err := s.ledger.Create(ctx, source.ID, models.TriggerSchedule); err != nil {
			var conflict *models.ConflictError
			if errors.As(err, &conflict) {
				s.logger.Debug().Str("source_id", source.ID).Msg("Source already in flight, skipping")
				skipped++
				continue
			}
			s.logger.Warn().Err(err).Str("source_id", source.ID).Msg("Failed to enqueue scheduled job")
			continue
		}
		enqueued++
	}

	s.logger.Info().
		Int("due", len(due)).
		Int("enqueued", enqueued).
		Int("skipped", skipped).
		Msg("Due-source scan completed")

	return nil
}
