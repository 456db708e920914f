package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/campscout/pipeline/internal/interfaces"
	"github.com/campscout/pipeline/internal/models"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"
)

// SourceSeedFile is the on-disk shape of a source seed file. One file may
// declare several sources for a market.
type SourceSeedFile struct {
	MarketID string       `yaml:"market_id"`
	Sources  []SourceSeed `yaml:"sources"`
}

// SourceSeed declares one scrapeable website.
type SourceSeed struct {
	OrganizationID string `yaml:"organization_id"`
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	FrequencyHours int    `yaml:"frequency_hours"`
}

// LoadSourcesFromFiles loads source seeds from YAML files in the specified
// directory. Existing sources (matched by URL) are left untouched so seed
// reloads never clobber accumulated health records.
func LoadSourcesFromFiles(ctx context.Context, sourceStorage interfaces.SourceStorage, seedDir string, defaultFrequencyHours int, logger arbor.ILogger) error {
	if _, err := os.Stat(seedDir); os.IsNotExist(err) {
		logger.Debug().Str("dir", seedDir).Msg("Source seed directory does not exist, skipping")
		return nil
	}

	logger.Info().Str("dir", seedDir).Msg("Loading source seeds from files")

	entries, err := os.ReadDir(seedDir)
	if err != nil {
		return fmt.Errorf("failed to read source seed directory: %w", err)
	}

	existing, err := sourceStorage.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list existing sources: %w", err)
	}
	byURL := make(map[string]bool, len(existing))
	for _, src := range existing {
		byURL[src.URL] = true
	}

	loadedCount := 0
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		filePath := filepath.Join(seedDir, entry.Name())

		yamlBytes, err := os.ReadFile(filePath)
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to read source seed file")
			continue
		}

		var seedFile SourceSeedFile
		if err := yaml.Unmarshal(yamlBytes, &seedFile); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to parse source seed YAML")
			continue
		}

		for _, seed := range seedFile.Sources {
			if byURL[seed.URL] {
				continue
			}

			freq := seed.FrequencyHours
			if freq <= 0 {
				freq = defaultFrequencyHours
			}

			source := models.NewSource(seed.OrganizationID, seedFile.MarketID, seed.Name, seed.URL, freq)
			if err := source.Validate(); err != nil {
				logger.Warn().Err(err).Str("file", entry.Name()).Str("name", seed.Name).Msg("Invalid source seed, skipping")
				continue
			}

			if err := sourceStorage.SaveSource(ctx, source); err != nil {
				logger.Warn().Err(err).Str("file", entry.Name()).Str("name", seed.Name).Msg("Failed to save seeded source")
				continue
			}
			byURL[source.URL] = true
			loadedCount++
		}
	}

	logger.Info().Int("count", loadedCount).Msg("Source seeds loaded")
	return nil
}
