package registry

import (
	"context"
	"testing"
	"time"

	"github.com/campscout/pipeline/internal/common"
	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/campscout/pipeline/internal/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func newRegistryFixture(t *testing.T) (interfaces.SourceStorage, *Service) {
	t.Helper()
	logger := arbor.NewLogger()

	storage, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	return storage.SourceStorage(), NewService(storage.SourceStorage(), 24, logger)
}

func TestRegister(t *testing.T) {
	_, svc := newRegistryFixture(t)
	ctx := context.Background()

	src, err := svc.Register(ctx, &RegisterInput{
		OrganizationID: "org_1",
		MarketID:       "pdx",
		Name:           "Trackers Earth",
		URL:            "https://trackersearth.com/portland/camps",
	})
	require.NoError(t, err)
	assert.True(t, src.IsActive)
	assert.Equal(t, 24, src.ScrapeFrequencyHours)
	// New sources are due immediately.
	assert.False(t, src.NextScheduledScrape.After(time.Now().UTC()))
}

func TestRegister_Validation(t *testing.T) {
	_, svc := newRegistryFixture(t)
	ctx := context.Background()

	var validation *models.ValidationError

	_, err := svc.Register(ctx, &RegisterInput{
		OrganizationID: "org_1",
		MarketID:       "pdx",
		Name:           "No URL Provider",
		URL:            "not a url",
	})
	assert.ErrorAs(t, err, &validation)

	_, err = svc.Register(ctx, &RegisterInput{
		OrganizationID: "org_1",
		MarketID:       "",
		Name:           "No Market Provider",
		URL:            "https://camps.example.com",
	})
	assert.ErrorAs(t, err, &validation)
}

func TestCloseSource_RequiresReason(t *testing.T) {
	storage, svc := newRegistryFixture(t)
	ctx := context.Background()

	src, err := svc.Register(ctx, &RegisterInput{
		OrganizationID: "org_1",
		MarketID:       "pdx",
		Name:           "Closable Provider",
		URL:            "https://camps.example.com/closable",
	})
	require.NoError(t, err)

	var validation *models.ValidationError
	assert.ErrorAs(t, svc.CloseSource(ctx, src.ID, "", "operator"), &validation)

	require.NoError(t, svc.CloseSource(ctx, src.ID, "provider shut down", "operator"))

	got, err := storage.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "provider shut down", got.ClosureReason)
	assert.Equal(t, "operator", got.ClosedBy)
}

func TestReopenSource(t *testing.T) {
	storage, svc := newRegistryFixture(t)
	ctx := context.Background()

	src, err := svc.Register(ctx, &RegisterInput{
		OrganizationID: "org_1",
		MarketID:       "pdx",
		Name:           "Seasonal Provider",
		URL:            "https://camps.example.com/seasonal",
	})
	require.NoError(t, err)
	require.NoError(t, svc.CloseSource(ctx, src.ID, "closed for winter", "operator"))

	require.NoError(t, svc.ReopenSource(ctx, src.ID))

	got, err := storage.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Empty(t, got.ClosureReason)
	assert.False(t, got.NextScheduledScrape.After(time.Now().UTC()))
}

func TestUpdateSchedule(t *testing.T) {
	storage, svc := newRegistryFixture(t)
	ctx := context.Background()

	src, err := svc.Register(ctx, &RegisterInput{
		OrganizationID: "org_1",
		MarketID:       "pdx",
		Name:           "Weekly Provider",
		URL:            "https://camps.example.com/weekly",
	})
	require.NoError(t, err)

	var validation *models.ValidationError
	assert.ErrorAs(t, svc.UpdateSchedule(ctx, src.ID, 0), &validation)

	require.NoError(t, svc.UpdateSchedule(ctx, src.ID, 168))

	got, err := storage.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 168, got.ScrapeFrequencyHours)
	assert.True(t, got.NextScheduledScrape.After(time.Now().UTC().Add(167*time.Hour)))
}
