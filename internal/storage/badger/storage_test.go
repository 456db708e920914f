package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/campscout/pipeline/internal/common"
	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	logger := arbor.NewLogger()

	manager, err := NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestSourceStorage_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	src := models.NewSource("org_1", "pdx", "Provider", "https://camps.example.com/a", 24)
	require.NoError(t, m.SourceStorage().SaveSource(ctx, src))

	got, err := m.SourceStorage().GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, src.URL, got.URL)
	assert.True(t, got.IsActive)

	_, err = m.SourceStorage().GetSource(ctx, "src_missing")
	var notFound *models.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestSourceStorage_URLHistorySurvivesPersistence(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	src := models.NewSource("org_1", "pdx", "Provider", "https://camps.example.com/a", 24)
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		src.URLHistory.Append(models.URLCheck{URL: src.URL, Status: models.URLCheckNotFound, CheckedAt: now})
	}
	require.NoError(t, m.SourceStorage().SaveSource(ctx, src))

	got, err := m.SourceStorage().GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.URLHistory.Len())
	assert.Equal(t, 3, got.URLHistory.TrailingRun(models.URLCheckNotFound))
}

func TestSourceStorage_ListDueSources(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := models.NewSource("org_1", "pdx", "Due Provider", "https://camps.example.com/due", 24)
	due.NextScheduledScrape = now.Add(-time.Hour)
	require.NoError(t, m.SourceStorage().SaveSource(ctx, due))

	future := models.NewSource("org_2", "pdx", "Future Provider", "https://camps.example.com/future", 24)
	future.NextScheduledScrape = now.Add(time.Hour)
	require.NoError(t, m.SourceStorage().SaveSource(ctx, future))

	closed := models.NewSource("org_3", "pdx", "Closed Provider", "https://camps.example.com/closed", 24)
	closed.NextScheduledScrape = now.Add(-time.Hour)
	closed.IsActive = false
	require.NoError(t, m.SourceStorage().SaveSource(ctx, closed))

	got, err := m.SourceStorage().ListDueSources(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
}

func TestJobStorage_ListInFlight(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	pending := models.NewScrapeJob("src_1", models.TriggerSchedule)
	require.NoError(t, m.JobStorage().SaveJob(ctx, pending))

	running := models.NewScrapeJob("src_1", models.TriggerManual)
	running.Status = models.JobStatusRunning
	require.NoError(t, m.JobStorage().SaveJob(ctx, running))

	done := models.NewScrapeJob("src_1", models.TriggerManual)
	done.Status = models.JobStatusCompleted
	require.NoError(t, m.JobStorage().SaveJob(ctx, done))

	other := models.NewScrapeJob("src_2", models.TriggerManual)
	require.NoError(t, m.JobStorage().SaveJob(ctx, other))

	inFlight, err := m.JobStorage().ListInFlight(ctx, "src_1")
	require.NoError(t, err)
	assert.Len(t, inFlight, 2)
	for _, job := range inFlight {
		assert.True(t, job.InFlight())
		assert.Equal(t, "src_1", job.SourceID)
	}
}

func TestRequestStorage_GetActiveRequestForSource(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	active, err := m.RequestStorage().GetActiveRequestForSource(ctx, "src_1")
	require.NoError(t, err)
	assert.Nil(t, active)

	completed := models.NewScraperDevelopmentRequest("pdx", "Provider", "https://camps.example.com/a")
	completed.SourceID = "src_1"
	completed.Status = models.RequestStatusCompleted
	require.NoError(t, m.RequestStorage().SaveRequest(ctx, completed))

	// Historical terminal rows never count as active.
	active, err = m.RequestStorage().GetActiveRequestForSource(ctx, "src_1")
	require.NoError(t, err)
	assert.Nil(t, active)

	current := models.NewScraperDevelopmentRequest("pdx", "Provider", "https://camps.example.com/a")
	current.SourceID = "src_1"
	current.Status = models.RequestStatusNeedsFeedback
	require.NoError(t, m.RequestStorage().SaveRequest(ctx, current))

	active, err = m.RequestStorage().GetActiveRequestForSource(ctx, "src_1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, current.ID, active.ID)
}

func TestSessionStorage_UpsertByNaturalKey(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	raw := models.RawSession{Name: "Forest Camp Week 1", URL: "https://camps.example.com/s/1", StartDate: "2026-06-15"}

	created, err := m.SessionStorage().UpsertSession(ctx, models.NewSession("src_1", "pdx", raw))
	require.NoError(t, err)
	assert.True(t, created)

	// Same natural key with fresher data updates in place; case and
	// whitespace differences in the name do not fork the row.
	raw2 := raw
	raw2.Name = "  forest camp week 1 "
	raw2.Price = "$450"
	created, err = m.SessionStorage().UpsertSession(ctx, models.NewSession("src_1", "pdx", raw2))
	require.NoError(t, err)
	assert.False(t, created)

	sessions, err := m.SessionStorage().ListSessionsBySource(ctx, "src_1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "$450", sessions[0].Price)

	// A different start date is a different session.
	raw3 := raw
	raw3.StartDate = "2026-06-22"
	created, err = m.SessionStorage().UpsertSession(ctx, models.NewSession("src_1", "pdx", raw3))
	require.NoError(t, err)
	assert.True(t, created)

	total, active, err := m.SessionStorage().CountSessionsByMarket(ctx, "pdx")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, active)
}

func TestAlertStorage_ListUnacknowledged(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	open := models.NewAlert("src_1", models.AlertScraperDegraded, models.SeverityWarning, "degraded")
	require.NoError(t, m.AlertStorage().SaveAlert(ctx, open))

	acked := models.NewAlert("src_1", models.AlertRateLimited, models.SeverityInfo, "throttled")
	acked.Acknowledge("operator", time.Now().UTC())
	require.NoError(t, m.AlertStorage().SaveAlert(ctx, acked))

	unacked, err := m.AlertStorage().ListUnacknowledged(ctx)
	require.NoError(t, err)
	require.Len(t, unacked, 1)
	assert.Equal(t, open.ID, unacked[0].ID)
}

func TestLoadSourcesFromFiles(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	logger := arbor.NewLogger()

	seedDir := t.TempDir()
	seed := `market_id: pdx
sources:
  - organization_id: org_1
    name: Seeded Provider
    url: https://camps.example.com/seeded
    frequency_hours: 48
  - organization_id: org_2
    name: Default Frequency Provider
    url: https://camps.example.com/default
`
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "pdx.yaml"), []byte(seed), 0o644))

	require.NoError(t, LoadSourcesFromFiles(ctx, m.SourceStorage(), seedDir, 24, logger))

	sources, err := m.SourceStorage().ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	byURL := map[string]*models.Source{}
	for _, src := range sources {
		byURL[src.URL] = src
	}
	assert.Equal(t, 48, byURL["https://camps.example.com/seeded"].ScrapeFrequencyHours)
	assert.Equal(t, 24, byURL["https://camps.example.com/default"].ScrapeFrequencyHours)

	// Reloading never clobbers existing rows or their health records.
	seeded := byURL["https://camps.example.com/seeded"]
	seeded.Health.TotalRuns = 7
	require.NoError(t, m.SourceStorage().SaveSource(ctx, seeded))

	require.NoError(t, LoadSourcesFromFiles(ctx, m.SourceStorage(), seedDir, 24, logger))

	got, err := m.SourceStorage().GetSource(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Health.TotalRuns)
}
