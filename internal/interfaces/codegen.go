package interfaces

import (
	"context"

	"github.com/campscout/pipeline/internal/models"
)

// GenerationInput carries everything the code generator may use when
// producing a candidate scraper program.
type GenerationInput struct {
	URL              string
	OrganizationName string
	Notes            string
	// PreviousCode is the current candidate when regenerating, empty for a
	// fresh request.
	PreviousCode string
	// FeedbackHistory is the full ordered review history; the newest entry is
	// the one the regeneration must incorporate.
	FeedbackHistory []models.FeedbackEntry
	// LastTestError is set when regenerating after a failed test run.
	LastTestError string
}

// CodeGenerator produces candidate scraper programs. The return value
// carries no guarantee of correctness; all trust is established through the
// development workflow's test cycle, never through this call alone.
type CodeGenerator interface {
	GenerateScraper(ctx context.Context, input *GenerationInput) (string, error)
}
