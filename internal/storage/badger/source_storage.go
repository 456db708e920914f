package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// SourceStorage implements the SourceStorage interface for Badger
type SourceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSourceStorage creates a new SourceStorage instance
func NewSourceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SourceStorage {
	return &SourceStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SourceStorage) SaveSource(ctx context.Context, source *models.Source) error {
	if source.ID == "" {
		return fmt.Errorf("source ID is required")
	}

	if err := s.db.Store().Upsert(source.ID, source); err != nil {
		return fmt.Errorf("failed to save source: %w", err)
	}
	return nil
}

func (s *SourceStorage) GetSource(ctx context.Context, id string) (*models.Source, error) {
	var source models.Source
	if err := s.db.Store().Get(id, &source); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, &models.NotFoundError{Entity: "source", ID: id}
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &source, nil
}

func (s *SourceStorage) ListSources(ctx context.Context) ([]*models.Source, error) {
	var sources []models.Source
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt")
	if err := s.db.Store().Find(&sources, query); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return toSourcePtrs(sources), nil
}

func (s *SourceStorage) ListSourcesByMarket(ctx context.Context, marketID string) ([]*models.Source, error) {
	var sources []models.Source
	query := badgerhold.Where("MarketID").Eq(marketID).SortBy("CreatedAt")
	if err := s.db.Store().Find(&sources, query); err != nil {
		return nil, fmt.Errorf("failed to list sources for market %s: %w", marketID, err)
	}
	return toSourcePtrs(sources), nil
}

func (s *SourceStorage) ListDueSources(ctx context.Context, now time.Time) ([]*models.Source, error) {
	var sources []models.Source
	query := badgerhold.Where("IsActive").Eq(true).And("NextScheduledScrape").Le(now)
	if err := s.db.Store().Find(&sources, query); err != nil {
		return nil, fmt.Errorf("failed to list due sources: %w", err)
	}
	return toSourcePtrs(sources), nil
}

func (s *SourceStorage) CountSources(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Source{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count sources: %w", err)
	}
	return int(count), nil
}

func toSourcePtrs(sources []models.Source) []*models.Source {
	result := make([]*models.Source, len(sources))
	for i := range sources {
		result[i] = &sources[i]
	}
	return result
}
