package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RawSession is one extracted camp session record as returned by a scraper
// module. The devflow's shape check and the session upsert both consume this
// form before any marketplace-side enrichment happens.
type RawSession struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Price     string `json:"price,omitempty"`
	AgeRange  string `json:"age_range,omitempty"`
}

// HasRequiredFields reports whether the record passes the basic shape check
// applied to dev-test samples before human review.
func (r *RawSession) HasRequiredFields() bool {
	return strings.TrimSpace(r.Name) != "" && strings.TrimSpace(r.URL) != ""
}

// Session is a persisted camp session. Sessions are upserted by natural key
// so duplicate scrape executions under the accepted single-flight race
// converge on the same row.
type Session struct {
	ID        string    `json:"id" badgerhold:"key"`
	SourceID  string    `json:"source_id"`
	MarketID  string    `json:"market_id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	StartDate string    `json:"start_date,omitempty"`
	EndDate   string    `json:"end_date,omitempty"`
	Price     string    `json:"price,omitempty"`
	AgeRange  string    `json:"age_range,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NaturalKey identifies a session independently of its row ID.
func (s *Session) NaturalKey() string {
	return s.SourceID + "|" + strings.ToLower(strings.TrimSpace(s.Name)) + "|" + s.StartDate
}

// NewSession creates an active session from an extracted record.
func NewSession(sourceID, marketID string, raw RawSession) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        "ses_" + uuid.New().String(),
		SourceID:  sourceID,
		MarketID:  marketID,
		Name:      raw.Name,
		URL:       raw.URL,
		StartDate: raw.StartDate,
		EndDate:   raw.EndDate,
		Price:     raw.Price,
		AgeRange:  raw.AgeRange,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
