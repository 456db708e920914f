package badger

import (
	"context"
	"fmt"

	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// StatusStorage persists the per-market pipeline status snapshots computed by
// the aggregator. Writes are idempotent; the newest snapshot wins.
type StatusStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewStatusStorage creates a new StatusStorage instance
func NewStatusStorage(db *BadgerDB, logger arbor.ILogger) interfaces.StatusStorage {
	return &StatusStorage{
		db:     db,
		logger: logger,
	}
}

func (s *StatusStorage) SaveStatus(ctx context.Context, status *models.PipelineStatus) error {
	if status.MarketID == "" {
		return fmt.Errorf("market ID is required")
	}

	if err := s.db.Store().Upsert(status.MarketID, status); err != nil {
		return fmt.Errorf("failed to save pipeline status: %w", err)
	}
	return nil
}

func (s *StatusStorage) GetStatus(ctx context.Context, marketID string) (*models.PipelineStatus, error) {
	var status models.PipelineStatus
	if err := s.db.Store().Get(marketID, &status); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, &models.NotFoundError{Entity: "pipeline status", ID: marketID}
		}
		return nil, fmt.Errorf("failed to get pipeline status: %w", err)
	}
	return &status, nil
}
