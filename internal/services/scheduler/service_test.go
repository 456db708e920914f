package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/campscout/pipeline/internal/alerts"
	"github.com/campscout/pipeline/internal/common"
	"github.com/campscout/pipeline/internal/health"
	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/campscout/pipeline/internal/services/events"
	"github.com/campscout/pipeline/internal/services/jobs"
	"github.com/campscout/pipeline/internal/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type schedulerFixture struct {
	storage interfaces.StorageManager
	service *Service
	release chan struct{}
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	logger := arbor.NewLogger()

	storage, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	eventSvc := events.NewService(logger)
	t.Cleanup(func() { eventSvc.Close() })

	release := make(chan struct{})
	runner := interfaces.RunnerFunc(func(ctx context.Context, url, code string) (*interfaces.ScrapeResult, error) {
		<-release
		return &interfaces.ScrapeResult{}, nil
	})

	alertSvc := alerts.NewService(storage.AlertStorage(), eventSvc, logger)
	ledger := jobs.NewService(storage, health.NewEngine(health.DefaultConfig()), alertSvc, eventSvc, runner, jobs.Options{
		JitterMax:  time.Millisecond,
		RunTimeout: 5 * time.Second,
	}, logger)

	service := NewService(storage.SourceStorage(), ledger, 100, 100, logger)

	return &schedulerFixture{storage: storage, service: service, release: release}
}

func (f *schedulerFixture) seedSource(t *testing.T, url, code string, next time.Time) *models.Source {
	t.Helper()
	src := models.NewSource("org_1", "pdx", "Provider", url, 24)
	src.ScraperCode = code
	src.NextScheduledScrape = next
	require.NoError(t, f.storage.SourceStorage().SaveSource(context.Background(), src))
	return src
}

// waitForSettled waits until the source has the expected number of job rows
// and none of them are still in flight.
func waitForSettled(t *testing.T, storage interfaces.JobStorage, sourceID string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		jobRows, err := storage.ListJobsBySource(context.Background(), sourceID, 10)
		require.NoError(t, err)
		inFlight, err := storage.ListInFlight(context.Background(), sourceID)
		require.NoError(t, err)
		if len(jobRows) == want && len(inFlight) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d settled jobs for %s", want, sourceID)
}

func TestScanOnce_EnqueuesDueSources(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := f.seedSource(t, "https://camps.example.com/due", "code", now.Add(-time.Hour))
	noCode := f.seedSource(t, "https://camps.example.com/nocode", "", now.Add(-time.Hour))
	future := f.seedSource(t, "https://camps.example.com/future", "code", now.Add(time.Hour))

	require.NoError(t, f.service.ScanOnce(ctx))
	close(f.release)

	waitForSettled(t, f.storage.JobStorage(), due.ID, 1)

	// Sources without an approved scraper wait for code approval; sources
	// not yet due wait for their schedule.
	for _, src := range []*models.Source{noCode, future} {
		jobRows, err := f.storage.JobStorage().ListJobsBySource(ctx, src.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, jobRows)
	}
}

func TestScanOnce_ConflictIsNotAnError(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := f.seedSource(t, "https://camps.example.com/due", "code", now.Add(-time.Hour))

	require.NoError(t, f.service.ScanOnce(ctx))
	// The first job is still in flight; a second scan skips it quietly.
	require.NoError(t, f.service.ScanOnce(ctx))

	inFlight, err := f.storage.JobStorage().ListInFlight(ctx, due.ID)
	require.NoError(t, err)
	assert.Len(t, inFlight, 1)

	close(f.release)
	waitForSettled(t, f.storage.JobStorage(), due.ID, 1)
}

func TestScanOnce_EmptyIsNoOp(t *testing.T) {
	f := newSchedulerFixture(t)
	require.NoError(t, f.service.ScanOnce(context.Background()))
	close(f.release)
}
