package badger

import (
	"context"
	"fmt"

	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// RequestStorage implements the RequestStorage interface for Badger
type RequestStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRequestStorage creates a new RequestStorage instance
func NewRequestStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RequestStorage {
	return &RequestStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RequestStorage) SaveRequest(ctx context.Context, req *models.ScraperDevelopmentRequest) error {
	if req.ID == "" {
		return fmt.Errorf("request ID is required")
	}

	if err := s.db.Store().Upsert(req.ID, req); err != nil {
		return fmt.Errorf("failed to save development request: %w", err)
	}
	return nil
}

func (s *RequestStorage) GetRequest(ctx context.Context, id string) (*models.ScraperDevelopmentRequest, error) {
	var req models.ScraperDevelopmentRequest
	if err := s.db.Store().Get(id, &req); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, &models.NotFoundError{Entity: "development request", ID: id}
		}
		return nil, fmt.Errorf("failed to get development request: %w", err)
	}
	return &req, nil
}

// GetActiveRequestForSource returns the non-terminal request for a source, or
// nil when none is in flight. A source has at most one active request;
// historical completed/failed rows are kept as the audit trail.
func (s *RequestStorage) GetActiveRequestForSource(ctx context.Context, sourceID string) (*models.ScraperDevelopmentRequest, error) {
	query := badgerhold.Where("SourceID").Eq(sourceID).
		And("Status").Ne(models.RequestStatusCompleted).
		And("Status").Ne(models.RequestStatusFailed)

	var reqs []models.ScraperDevelopmentRequest
	if err := s.db.Store().Find(&reqs, query); err != nil {
		return nil, fmt.Errorf("failed to find active request for source %s: %w", sourceID, err)
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	return &reqs[0], nil
}

func (s *RequestStorage) ListRequests(ctx context.Context) ([]*models.ScraperDevelopmentRequest, error) {
	var reqs []models.ScraperDevelopmentRequest
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&reqs, query); err != nil {
		return nil, fmt.Errorf("failed to list development requests: %w", err)
	}

	result := make([]*models.ScraperDevelopmentRequest, len(reqs))
	for i := range reqs {
		result[i] = &reqs[i]
	}
	return result, nil
}
