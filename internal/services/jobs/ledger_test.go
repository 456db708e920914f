package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campscout/pipeline/internal/alerts"
	"github.com/campscout/pipeline/internal/common"
	"github.com/campscout/pipeline/internal/health"
	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/campscout/pipeline/internal/services/events"
	"github.com/campscout/pipeline/internal/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type ledgerFixture struct {
	storage interfaces.StorageManager
	service *Service
	runner  *swappableRunner
}

// swappableRunner lets each test supply its own execution behavior.
type swappableRunner struct {
	fn interfaces.RunnerFunc
}

func (r *swappableRunner) Run(ctx context.Context, url, code string) (*interfaces.ScrapeResult, error) {
	if r.fn == nil {
		return &interfaces.ScrapeResult{}, nil
	}
	return r.fn(ctx, url, code)
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	logger := arbor.NewLogger()

	storage, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	eventSvc := events.NewService(logger)
	t.Cleanup(func() { eventSvc.Close() })

	runner := &swappableRunner{}
	alertSvc := alerts.NewService(storage.AlertStorage(), eventSvc, logger)
	engine := health.NewEngine(health.DefaultConfig())

	service := NewService(storage, engine, alertSvc, eventSvc, runner, Options{
		JitterMax:  time.Millisecond,
		RunTimeout: 5 * time.Second,
	}, logger)

	return &ledgerFixture{storage: storage, service: service, runner: runner}
}

func (f *ledgerFixture) seedSource(t *testing.T, scraperCode string) *models.Source {
	t.Helper()
	src := models.NewSource("org_1", "pdx", "Test Camp Provider", "https://camps.example.com/sessions", 24)
	src.ScraperCode = scraperCode
	require.NoError(t, f.storage.SourceStorage().SaveSource(context.Background(), src))
	return src
}

// seedPendingJob inserts a pending row directly so transition tests can
// drive the state machine without racing the async executor.
func (f *ledgerFixture) seedPendingJob(t *testing.T, sourceID string) *models.ScrapeJob {
	t.Helper()
	job := models.NewScrapeJob(sourceID, models.TriggerManual)
	require.NoError(t, f.storage.JobStorage().SaveJob(context.Background(), job))
	return job
}

func waitForTerminal(t *testing.T, storage interfaces.JobStorage, jobID string) *models.ScrapeJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := storage.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal status")
	return nil
}

func TestCreate_SingleFlightConflict(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	src := f.seedSource(t, "scraper-code")

	release := make(chan struct{})
	f.runner.fn = func(ctx context.Context, url, code string) (*interfaces.ScrapeResult, error) {
		<-release
		return &interfaces.ScrapeResult{}, nil
	}

	job, err := f.service.Create(ctx, src.ID, models.TriggerManual)
	require.NoError(t, err)

	// While the first job holds the slot, a second create must conflict.
	_, err = f.service.Create(ctx, src.ID, models.TriggerManual)
	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, src.ID, conflict.SourceID)

	close(release)
	final := waitForTerminal(t, f.storage.JobStorage(), job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)

	// Slot free again.
	job3, err := f.service.Create(ctx, src.ID, models.TriggerManual)
	require.NoError(t, err)
	waitForTerminal(t, f.storage.JobStorage(), job3.ID)
}

func TestCreate_UnknownSource(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.service.Create(context.Background(), "src_missing", models.TriggerManual)
	var notFound *models.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestTransitions_InvalidStateRejected(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	src := f.seedSource(t, "scraper-code")
	job := f.seedPendingJob(t, src.ID)

	// Completing a pending job skips running and must be rejected.
	err := f.service.Complete(ctx, job.ID, 1, 1, 0)
	var invalid *models.InvalidStateError
	require.ErrorAs(t, err, &invalid)

	_, err = f.service.Start(ctx, job.ID)
	require.NoError(t, err)

	// A second start must be rejected.
	_, err = f.service.Start(ctx, job.ID)
	require.ErrorAs(t, err, &invalid)

	require.NoError(t, f.service.Complete(ctx, job.ID, 2, 1, 1))

	// Terminal rows accept nothing further.
	err = f.service.Fail(ctx, job.ID, "late failure")
	require.ErrorAs(t, err, &invalid)
}

func TestComplete_UpdatesSourceSchedule(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	src := f.seedSource(t, "scraper-code")
	job := f.seedPendingJob(t, src.ID)

	_, err := f.service.Start(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, f.service.Complete(ctx, job.ID, 3, 2, 1))

	updated, err := f.storage.SourceStorage().GetSource(ctx, src.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastScrapedAt)
	assert.Equal(t, 0, updated.Health.ConsecutiveFailures)
	assert.Equal(t, 1, updated.Health.TotalRuns)
	assert.True(t, updated.NextScheduledScrape.After(time.Now().UTC().Add(23*time.Hour)))

	stored, err := f.storage.JobStorage().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.SessionsFound)
	assert.Equal(t, 2, stored.SessionsCreated)
	assert.Equal(t, 1, stored.SessionsUpdated)
}

func TestFail_RateLimitedSchedulesFixedDelay(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	src := f.seedSource(t, "scraper-code")
	job := f.seedPendingJob(t, src.ID)

	_, err := f.service.Start(ctx, job.ID)
	require.NoError(t, err)

	before := time.Now().UTC()
	require.NoError(t, f.service.Fail(ctx, job.ID, "HTTP 429 Too Many Requests"))

	updated, err := f.storage.SourceStorage().GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Health.ConsecutiveFailures)
	assert.False(t, updated.NextScheduledScrape.Before(before.Add(6*time.Hour)))

	unacked, err := f.storage.AlertStorage().ListUnacknowledged(ctx)
	require.NoError(t, err)
	require.Len(t, unacked, 1)
	assert.Equal(t, models.AlertRateLimited, unacked[0].Type)
}

func TestFail_DevTestSkipsHealth(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	src := f.seedSource(t, "")

	job, err := f.service.CreateDevTest(ctx, src.ID, "req_test")
	require.NoError(t, err)
	_, err = f.service.Start(ctx, job.ID)
	require.NoError(t, err)

	require.NoError(t, f.service.Fail(ctx, job.ID, "candidate crashed"))

	updated, err := f.storage.SourceStorage().GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Health.TotalRuns)
	assert.Equal(t, 0, updated.Health.ConsecutiveFailures)

	unacked, err := f.storage.AlertStorage().ListUnacknowledged(ctx)
	require.NoError(t, err)
	assert.Empty(t, unacked)
}

func TestExecute_FiltersRecordsAndUpsertsSessions(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	src := f.seedSource(t, "scraper-code")

	f.runner.fn = func(ctx context.Context, url, code string) (*interfaces.ScrapeResult, error) {
		return &interfaces.ScrapeResult{Sessions: []models.RawSession{
			{Name: "Forest Camp Week 1", URL: "https://camps.example.com/s/1", StartDate: "2026-06-15"},
			{Name: "", URL: "https://camps.example.com/s/2"}, // dropped by shape check
		}}, nil
	}

	job, err := f.service.Create(ctx, src.ID, models.TriggerManual)
	require.NoError(t, err)
	final := waitForTerminal(t, f.storage.JobStorage(), job.ID)

	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 2, final.SessionsFound)
	assert.Equal(t, 1, final.SessionsCreated)
	assert.Equal(t, 0, final.SessionsUpdated)

	// A second identical run converges on the same row.
	job2, err := f.service.Create(ctx, src.ID, models.TriggerManual)
	require.NoError(t, err)
	final2 := waitForTerminal(t, f.storage.JobStorage(), job2.ID)
	assert.Equal(t, 0, final2.SessionsCreated)
	assert.Equal(t, 1, final2.SessionsUpdated)
}

func TestExecute_RunnerErrorFailsJob(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	src := f.seedSource(t, "scraper-code")

	f.runner.fn = func(ctx context.Context, url, code string) (*interfaces.ScrapeResult, error) {
		return nil, errors.New("HTTP 404 Not Found")
	}

	job, err := f.service.Create(ctx, src.ID, models.TriggerManual)
	require.NoError(t, err)
	final := waitForTerminal(t, f.storage.JobStorage(), job.ID)

	assert.Equal(t, models.JobStatusFailed, final.Status)
	assert.Equal(t, "HTTP 404 Not Found", final.ErrorMessage)

	updated, err := f.storage.SourceStorage().GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.URLHistory.TrailingRun(models.URLCheckNotFound))
}

func TestExecute_NoScraperCodeFailsPreflight(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	src := f.seedSource(t, "")

	job, err := f.service.Create(ctx, src.ID, models.TriggerManual)
	require.NoError(t, err)
	final := waitForTerminal(t, f.storage.JobStorage(), job.ID)

	assert.Equal(t, models.JobStatusFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "no production scraper")
}

func TestCleanupStuck(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	src := f.seedSource(t, "scraper-code")

	pending := f.seedPendingJob(t, src.ID)
	running := models.NewScrapeJob(src.ID, models.TriggerSchedule)
	running.Status = models.JobStatusRunning
	require.NoError(t, f.storage.JobStorage().SaveJob(ctx, running))

	stuck, err := f.service.ListStuck(ctx, src.ID)
	require.NoError(t, err)
	assert.Len(t, stuck, 2)

	cleaned, err := f.service.CleanupStuck(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cleaned)

	for _, id := range []string{pending.ID, running.ID} {
		job, err := f.storage.JobStorage().GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusFailed, job.Status)
	}

	// Cleanup bypasses the health engine entirely.
	updated, err := f.storage.SourceStorage().GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Health.TotalRuns)
}
