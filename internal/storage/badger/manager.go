package badger

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db          *BadgerDB
	job         interfaces.JobStorage
	document    interfaces.DocumentStorage
	pipeline    interfaces.PipelineStorage
	jobLog      interfaces.JobLogStorage
	kv          interfaces.KeyValueStorage
	persistence interfaces.Persistence
	logger      arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	persistence := NewPersistence(db, logger)

	manager := &Manager{
		db:          db,
		job:         NewJobStorage(db, logger),
		document:    NewDocumentStorage(db, logger, persistence),
		pipeline:    NewPipelineStorage(db, logger),
		jobLog:      NewJobLogStorage(db, logger),
		kv:          NewKVStorage(db, logger),
		persistence: persistence,
		logger:      logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// DocumentStorage returns the Document storage interface
func (m *Manager) DocumentStorage() interfaces.DocumentStorage {
	return m.document
}

// PipelineStorage returns the Pipeline storage interface
func (m *Manager) PipelineStorage() interfaces.PipelineStorage {
	return m.pipeline
}

// JobLogStorage returns the JobLog storage interface
func (m *Manager) JobLogStorage() interfaces.JobLogStorage {
	return m.jobLog
}

// KVStorage returns the KeyValue storage interface
func (m *Manager) KVStorage() interfaces.KeyValueStorage {
	return m.kv
}

// Persistence returns the generic document persistence port
func (m *Manager) Persistence() interfaces.Persistence {
	return m.persistence
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// LoadPipelinesFromFiles loads pipeline definitions from TOML/YAML files
func (m *Manager) LoadPipelinesFromFiles(ctx context.Context, dirPath string) error {
	return LoadPipelinesFromFiles(ctx, m.pipeline, m.kv, dirPath, m.logger)
}
