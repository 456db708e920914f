package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a scrape job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job trigger tags recorded on creation.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerDevTest  = "dev-test"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ScrapeJob is one execution attempt of a source's scraper. A new attempt is
// always a new row; failed/completed rows are never re-used.
//
// Transitions:
//
//	(none) --create--> pending --start--> running --complete--> completed
//	                                   \--fail-----> failed
//	pending --fail--> failed   (pre-flight abort)
//
// At most one pending and one running job may exist per source at a time.
// The guard is a read-check-then-insert precondition, not a lock; callers
// must treat a lost race as retryable.
type ScrapeJob struct {
	ID          string     `json:"id" badgerhold:"key"`
	SourceID    string     `json:"source_id"`
	Status      JobStatus  `json:"status"`
	TriggeredBy string     `json:"triggered_by"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	SessionsFound   int `json:"sessions_found"`
	SessionsCreated int `json:"sessions_created"`
	SessionsUpdated int `json:"sessions_updated"`

	RetryCount   int    `json:"retry_count"`
	ErrorMessage string `json:"error_message,omitempty"`

	// DevRequestID links dev-test runs back to their workflow instance.
	DevRequestID string `json:"dev_request_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewScrapeJob creates a pending job for a source.
func NewScrapeJob(sourceID, triggeredBy string) *ScrapeJob {
	return &ScrapeJob{
		ID:          "job_" + uuid.New().String(),
		SourceID:    sourceID,
		Status:      JobStatusPending,
		TriggeredBy: triggeredBy,
		CreatedAt:   time.Now().UTC(),
	}
}

// CanTransition reports whether moving to the target status is legal.
func (j *ScrapeJob) CanTransition(to JobStatus) bool {
	switch to {
	case JobStatusRunning:
		return j.Status == JobStatusPending
	case JobStatusCompleted:
		return j.Status == JobStatusRunning
	case JobStatusFailed:
		return j.Status == JobStatusPending || j.Status == JobStatusRunning
	default:
		return false
	}
}

// InFlight reports whether the job occupies the source's single-flight slot.
func (j *ScrapeJob) InFlight() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}
