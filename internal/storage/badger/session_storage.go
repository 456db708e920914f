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

// SessionStorage implements the SessionStorage interface for Badger
type SessionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SessionStorage {
	return &SessionStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertSession inserts or updates by natural key (source, name, start date).
// Duplicate scrape executions under the accepted single-flight race converge
// on the same row, which is what makes the downstream recompute safe under
// at-least-once delivery.
func (s *SessionStorage) UpsertSession(ctx context.Context, session *models.Session) (bool, error) {
	if session.ID == "" {
		return false, fmt.Errorf("session ID is required")
	}

	key := session.NaturalKey()

	var existing []models.Session
	query := badgerhold.Where("SourceID").Eq(session.SourceID)
	if err := s.db.Store().Find(&existing, query); err != nil {
		return false, fmt.Errorf("failed to query sessions for source %s: %w", session.SourceID, err)
	}

	for i := range existing {
		if existing[i].NaturalKey() == key {
			session.ID = existing[i].ID
			session.CreatedAt = existing[i].CreatedAt
			session.UpdatedAt = time.Now().UTC()
			if err := s.db.Store().Upsert(session.ID, session); err != nil {
				return false, fmt.Errorf("failed to update session: %w", err)
			}
			return false, nil
		}
	}

	if err := s.db.Store().Insert(session.ID, session); err != nil {
		return false, fmt.Errorf("failed to insert session: %w", err)
	}
	return true, nil
}

func (s *SessionStorage) CountSessionsByMarket(ctx context.Context, marketID string) (int, int, error) {
	var sessions []models.Session
	query := badgerhold.Where("MarketID").Eq(marketID)
	if err := s.db.Store().Find(&sessions, query); err != nil {
		return 0, 0, fmt.Errorf("failed to count sessions for market %s: %w", marketID, err)
	}

	active := 0
	for i := range sessions {
		if sessions[i].Active {
			active++
		}
	}
	return len(sessions), active, nil
}

func (s *SessionStorage) ListSessionsBySource(ctx context.Context, sourceID string) ([]*models.Session, error) {
	var sessions []models.Session
	query := badgerhold.Where("SourceID").Eq(sourceID).SortBy("Name")
	if err := s.db.Store().Find(&sessions, query); err != nil {
		return nil, fmt.Errorf("failed to list sessions for source %s: %w", sourceID, err)
	}

	result := make([]*models.Session, len(sessions))
	for i := range sessions {
		result[i] = &sessions[i]
	}
	return result, nil
}
