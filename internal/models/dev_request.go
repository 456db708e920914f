package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus represents the state of a scraper development workflow.
type RequestStatus string

const (
	RequestStatusPending       RequestStatus = "pending"
	RequestStatusInProgress    RequestStatus = "in_progress"
	RequestStatusTesting       RequestStatus = "testing"
	RequestStatusNeedsFeedback RequestStatus = "needs_feedback"
	RequestStatusCompleted     RequestStatus = "completed"
	RequestStatusFailed        RequestStatus = "failed"
)

// IsTerminal reports whether the workflow has finished.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusFailed
}

// DefaultMaxTestRetries is the default test retry ceiling per workflow.
const DefaultMaxTestRetries = 3

// FeedbackEntry is one human review note, tagged with the candidate version
// it was given against. Entries are append-only and never reordered.
type FeedbackEntry struct {
	FeedbackAt           time.Time `json:"feedback_at"`
	FeedbackText         string    `json:"feedback_text"`
	ScraperVersionBefore int       `json:"scraper_version_before"`
}

// ScraperDevelopmentRequest is one request → generate → test → feedback →
// approve workflow instance. Requests are never deleted; completed and
// failed rows remain as the audit trail.
//
// Transitions:
//
//	pending --> in_progress --> testing --> needs_feedback --> completed
//	                 ^             |              |
//	                 |             | (retry       | (feedback)
//	                 +-------------+  budget)     |
//	                 +----------------------------+
//	testing --> failed   (retry budget exhausted)
type ScraperDevelopmentRequest struct {
	ID               string `json:"id" badgerhold:"key"`
	SourceID         string `json:"source_id,omitempty"`
	OrganizationName string `json:"organization_name"`
	MarketID         string `json:"market_id"`
	URL              string `json:"url"`
	Notes            string `json:"notes,omitempty"`

	Status RequestStatus `json:"status"`

	// ScraperVersion increments exactly once per regeneration.
	ScraperVersion       int    `json:"scraper_version"`
	GeneratedScraperCode string `json:"generated_scraper_code,omitempty"`

	LastTestRun           *time.Time `json:"last_test_run,omitempty"`
	LastTestSessionsFound int        `json:"last_test_sessions_found"`
	LastTestError         string     `json:"last_test_error,omitempty"`
	LastTestSampleData    string     `json:"last_test_sample_data,omitempty"`

	TestRetryCount int `json:"test_retry_count"`
	MaxTestRetries int `json:"max_test_retries"`

	FeedbackHistory []FeedbackEntry `json:"feedback_history,omitempty"`

	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewScraperDevelopmentRequest creates a pending workflow instance.
func NewScraperDevelopmentRequest(marketID, organizationName, url string) *ScraperDevelopmentRequest {
	now := time.Now().UTC()
	return &ScraperDevelopmentRequest{
		ID:               "req_" + uuid.New().String(),
		MarketID:         marketID,
		OrganizationName: organizationName,
		URL:              url,
		Status:           RequestStatusPending,
		MaxTestRetries:   DefaultMaxTestRetries,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// AppendFeedback records a review note against the current candidate version.
func (r *ScraperDevelopmentRequest) AppendFeedback(text string, at time.Time) {
	r.FeedbackHistory = append(r.FeedbackHistory, FeedbackEntry{
		FeedbackAt:           at,
		FeedbackText:         text,
		ScraperVersionBefore: r.ScraperVersion,
	})
}
