package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// PipelineStorage implements the PipelineStorage interface for Badger
type PipelineStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPipelineStorage creates a new PipelineStorage instance
func NewPipelineStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PipelineStorage {
	return &PipelineStorage{
		db:     db,
		logger: logger,
	}
}

func (s *PipelineStorage) SavePipeline(ctx context.Context, def *models.PipelineDefinition) error {
	if def == nil {
		return fmt.Errorf("pipeline definition is nil")
	}
	if def.ID == "" {
		return fmt.Errorf("pipeline ID is required")
	}

	now := time.Now()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	if err := s.db.Store().Upsert(def.ID, def); err != nil {
		return fmt.Errorf("failed to save pipeline: %w", err)
	}
	return nil
}

func (s *PipelineStorage) GetPipeline(ctx context.Context, id string) (*models.PipelineDefinition, error) {
	var def models.PipelineDefinition
	if err := s.db.Store().Get(id, &def); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("pipeline not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}
	return &def, nil
}

func (s *PipelineStorage) DeletePipeline(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.PipelineDefinition{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete pipeline: %w", err)
	}
	return nil
}

func (s *PipelineStorage) ListPipelines(ctx context.Context) ([]*models.PipelineDefinition, error) {
	var defs []models.PipelineDefinition
	if err := s.db.Store().Find(&defs, badgerhold.Where("ID").Ne("").SortBy("ID")); err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}

	result := make([]*models.PipelineDefinition, len(defs))
	for i := range defs {
		result[i] = &defs[i]
	}
	return result, nil
}
