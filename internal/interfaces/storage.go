package interfaces

import (
	"context"
	"time"

	"github.com/campscout/pipeline/internal/models"
)

// SourceStorage - interface for source registry persistence
type SourceStorage interface {
	SaveSource(ctx context.Context, source *models.Source) error
	GetSource(ctx context.Context, id string) (*models.Source, error)
	ListSources(ctx context.Context) ([]*models.Source, error)
	ListSourcesByMarket(ctx context.Context, marketID string) ([]*models.Source, error)
	// ListDueSources returns active sources whose next scheduled scrape is at
	// or before now.
	ListDueSources(ctx context.Context, now time.Time) ([]*models.Source, error)
	CountSources(ctx context.Context) (int, error)
}

// JobStorage - interface for scrape job ledger persistence
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.ScrapeJob) error
	GetJob(ctx context.Context, id string) (*models.ScrapeJob, error)
	ListJobsBySource(ctx context.Context, sourceID string, limit int) ([]*models.ScrapeJob, error)
	// ListInFlight returns the pending and running jobs for a source, used by
	// the single-flight precondition check and by cleanupStuck.
	ListInFlight(ctx context.Context, sourceID string) ([]*models.ScrapeJob, error)
}

// RequestStorage - interface for scraper development request persistence
type RequestStorage interface {
	SaveRequest(ctx context.Context, req *models.ScraperDevelopmentRequest) error
	GetRequest(ctx context.Context, id string) (*models.ScraperDevelopmentRequest, error)
	// GetActiveRequestForSource returns the non-terminal request for a source,
	// or nil when none is in flight.
	GetActiveRequestForSource(ctx context.Context, sourceID string) (*models.ScraperDevelopmentRequest, error)
	ListRequests(ctx context.Context) ([]*models.ScraperDevelopmentRequest, error)
}

// AlertStorage - interface for operator alert persistence
type AlertStorage interface {
	SaveAlert(ctx context.Context, alert *models.Alert) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlertsBySource(ctx context.Context, sourceID string) ([]*models.Alert, error)
	ListUnacknowledged(ctx context.Context) ([]*models.Alert, error)
}

// SessionStorage - interface for extracted session persistence
type SessionStorage interface {
	// UpsertSession inserts or updates by natural key and reports whether a
	// new row was created. Idempotent under duplicate job execution.
	UpsertSession(ctx context.Context, session *models.Session) (created bool, err error)
	CountSessionsByMarket(ctx context.Context, marketID string) (total int, active int, err error)
	ListSessionsBySource(ctx context.Context, sourceID string) ([]*models.Session, error)
}

// StatusStorage - interface for per-market pipeline status snapshots
type StatusStorage interface {
	SaveStatus(ctx context.Context, status *models.PipelineStatus) error
	GetStatus(ctx context.Context, marketID string) (*models.PipelineStatus, error)
}

// StorageManager aggregates all storage interfaces behind one handle.
type StorageManager interface {
	SourceStorage() SourceStorage
	JobStorage() JobStorage
	RequestStorage() RequestStorage
	AlertStorage() AlertStorage
	SessionStorage() SessionStorage
	StatusStorage() StatusStorage
	Close() error
}
