package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertType classifies an operator notification.
type AlertType string

const (
	AlertRateLimited       AlertType = "rate_limited"
	AlertScraperDegraded   AlertType = "scraper_degraded"
	AlertNeedsRegeneration AlertType = "scraper_needs_regeneration"
	AlertScraperDisabled   AlertType = "scraper_disabled"
)

// AlertSeverity is the operator-facing severity level.
type AlertSeverity string

const (
	SeverityInfo    AlertSeverity = "info"
	SeverityWarning AlertSeverity = "warning"
	SeverityError   AlertSeverity = "error"
)

// Alert is one operator notification derived from a health-state transition.
// Alerts are created by the alerting policy, mutated only by acknowledgment,
// and never auto-deleted. They are deliberately not deduplicated: repeated
// degraded states produce repeated alerts.
type Alert struct {
	ID             string        `json:"id" badgerhold:"key"`
	SourceID       string        `json:"source_id"`
	Type           AlertType     `json:"alert_type"`
	Severity       AlertSeverity `json:"severity"`
	Message        string        `json:"message"`
	CreatedAt      time.Time     `json:"created_at"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string        `json:"acknowledged_by,omitempty"`
}

// NewAlert creates an unacknowledged alert for a source.
func NewAlert(sourceID string, alertType AlertType, severity AlertSeverity, message string) *Alert {
	return &Alert{
		ID:        "alert_" + uuid.New().String(),
		SourceID:  sourceID,
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// Acknowledge marks the alert as seen. Acknowledgment does not suppress
// future alerts of the same type.
func (a *Alert) Acknowledge(by string, at time.Time) {
	a.AcknowledgedAt = &at
	a.AcknowledgedBy = by
}
