package badger

import (
	"context"
	"fmt"

	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// AlertStorage implements the AlertStorage interface for Badger
type AlertStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAlertStorage creates a new AlertStorage instance
func NewAlertStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AlertStorage {
	return &AlertStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AlertStorage) SaveAlert(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		return fmt.Errorf("alert ID is required")
	}

	if err := s.db.Store().Upsert(alert.ID, alert); err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

func (s *AlertStorage) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	var alert models.Alert
	if err := s.db.Store().Get(id, &alert); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, &models.NotFoundError{Entity: "alert", ID: id}
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &alert, nil
}

func (s *AlertStorage) ListAlertsBySource(ctx context.Context, sourceID string) ([]*models.Alert, error) {
	var alerts []models.Alert
	query := badgerhold.Where("SourceID").Eq(sourceID).SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&alerts, query); err != nil {
		return nil, fmt.Errorf("failed to list alerts for source %s: %w", sourceID, err)
	}
	return toAlertPtrs(alerts), nil
}

func (s *AlertStorage) ListUnacknowledged(ctx context.Context) ([]*models.Alert, error) {
	var alerts []models.Alert
	query := badgerhold.Where("AcknowledgedAt").IsNil().SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&alerts, query); err != nil {
		return nil, fmt.Errorf("failed to list unacknowledged alerts: %w", err)
	}
	return toAlertPtrs(alerts), nil
}

func toAlertPtrs(alerts []models.Alert) []*models.Alert {
	result := make([]*models.Alert, len(alerts))
	for i := range alerts {
		result[i] = &alerts[i]
	}
	return result
}
