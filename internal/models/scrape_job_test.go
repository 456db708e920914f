package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrapeJob_CanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{"pending to running", JobStatusPending, JobStatusRunning, true},
		{"running to completed", JobStatusRunning, JobStatusCompleted, true},
		{"running to failed", JobStatusRunning, JobStatusFailed, true},
		{"pending to failed preflight abort", JobStatusPending, JobStatusFailed, true},
		{"pending to completed skips running", JobStatusPending, JobStatusCompleted, false},
		{"completed is terminal", JobStatusCompleted, JobStatusFailed, false},
		{"failed is terminal", JobStatusFailed, JobStatusRunning, false},
		{"running cannot restart", JobStatusRunning, JobStatusRunning, false},
		{"no transition to pending", JobStatusRunning, JobStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewScrapeJob("src_test", TriggerManual)
			job.Status = tt.from
			assert.Equal(t, tt.allowed, job.CanTransition(tt.to))
		})
	}
}

func TestScrapeJob_InFlight(t *testing.T) {
	job := NewScrapeJob("src_test", TriggerSchedule)
	assert.True(t, job.InFlight())

	job.Status = JobStatusRunning
	assert.True(t, job.InFlight())

	job.Status = JobStatusCompleted
	assert.False(t, job.InFlight())

	job.Status = JobStatusFailed
	assert.False(t, job.InFlight())
}
