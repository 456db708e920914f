package devflow

import (
	"encoding/json"

	"github.com/campscout/pipeline/internal/models"
)

// evaluateSample checks the shape of a test run's output and serializes up
// to limit records for human review. The test passes only when every
// extracted record carries the required fields; a scraper that returns junk
// alongside real sessions is not trusted.
func evaluateSample(sessions []models.RawSession, limit int) (bool, string) {
	if len(sessions) == 0 {
		return false, ""
	}

	for _, raw := range sessions {
		if !raw.HasRequiredFields() {
			return false, marshalSample(sessions, limit)
		}
	}

	return true, marshalSample(sessions, limit)
}

func marshalSample(sessions []models.RawSession, limit int) string {
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
