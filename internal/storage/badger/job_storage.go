package badger

import (
	"context"
	"fmt"

	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.ScrapeJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.ScrapeJob, error) {
	var job models.ScrapeJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, &models.NotFoundError{Entity: "job", ID: id}
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) ListJobsBySource(ctx context.Context, sourceID string, limit int) ([]*models.ScrapeJob, error) {
	query := badgerhold.Where("SourceID").Eq(sourceID).SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []models.ScrapeJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs for source %s: %w", sourceID, err)
	}
	return toJobPtrs(jobs), nil
}

// ListInFlight returns the pending and running jobs for a source. This feeds
// the single-flight precondition; under normal operation it returns at most
// one row.
func (s *JobStorage) ListInFlight(ctx context.Context, sourceID string) ([]*models.ScrapeJob, error) {
	query := badgerhold.Where("SourceID").Eq(sourceID).
		And("Status").In(models.JobStatusPending, models.JobStatusRunning)

	var jobs []models.ScrapeJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list in-flight jobs for source %s: %w", sourceID, err)
	}
	return toJobPtrs(jobs), nil
}

func toJobPtrs(jobs []models.ScrapeJob) []*models.ScrapeJob {
	result := make([]*models.ScrapeJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result
}
