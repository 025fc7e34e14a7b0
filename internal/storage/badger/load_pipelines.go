package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// LoadPipelinesFromFiles loads pipeline definitions from TOML and YAML files
// in the given directory. Files that fail to parse or validate are skipped
// with a warning so one bad definition does not block startup.
func LoadPipelinesFromFiles(ctx context.Context, pipelineStorage interfaces.PipelineStorage, kvStorage interfaces.KeyValueStorage, definitionsDir string, logger arbor.ILogger) error {
	if _, err := os.Stat(definitionsDir); os.IsNotExist(err) {
		logger.Debug().Str("dir", definitionsDir).Msg("Pipeline definitions directory does not exist, skipping")
		return nil
	}

	logger.Info().Str("dir", definitionsDir).Msg("Loading pipeline definitions from files")

	entries, err := os.ReadDir(definitionsDir)
	if err != nil {
		return fmt.Errorf("failed to read pipeline definitions directory: %w", err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		if ext != ".toml" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		filePath := filepath.Join(definitionsDir, entry.Name())
		raw, err := os.ReadFile(filePath)
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to read pipeline definition file")
			continue
		}

		var def models.PipelineDefinition
		if ext == ".toml" {
			err = toml.Unmarshal(raw, &def)
		} else {
			err = yaml.Unmarshal(raw, &def)
		}
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to parse pipeline definition")
			continue
		}

		if err := def.Validate(); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Str("pipeline_id", def.ID).Msg("Pipeline definition validation failed, skipping")
			continue
		}

		// File definitions win over stored copies so edits take effect on
		// restart; CreatedAt survives from the stored copy when present.
		if existing, err := pipelineStorage.GetPipeline(ctx, def.ID); err == nil && existing != nil {
			def.CreatedAt = existing.CreatedAt
		}

		if err := pipelineStorage.SavePipeline(ctx, &def); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Str("pipeline_id", def.ID).Msg("Failed to save pipeline definition")
			continue
		}

		logger.Info().Str("file", entry.Name()).Str("pipeline_id", def.ID).Str("name", def.Name).Msg("Pipeline definition loaded from file")
		loadedCount++
	}

	if loadedCount > 0 {
		logger.Info().Int("count", loadedCount).Msg("Pipeline definitions loaded from files")
	} else {
		logger.Debug().Msg("No pipeline definitions loaded from files")
	}

	return nil
}
