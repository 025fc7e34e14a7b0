package interfaces

import (
	"context"

	"github.com/ternarybob/scrutor/internal/models"
)

// JobListOptions filters and paginates job queries
type JobListOptions struct {
	Status   string
	UserID   string
	OrderBy  string
	OrderDir string
	Limit    int
	Offset   int
}

// JobStorage - interface for job persistence
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	DeleteJob(ctx context.Context, jobID string) error
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)
	CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error)
	// GetStaleJobs returns processing jobs whose StartedAt is older than
	// the given number of minutes
	GetStaleJobs(ctx context.Context, olderThanMinutes int) ([]*models.Job, error)
}

// DocumentStorage - interface for document persistence
type DocumentStorage interface {
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, limit, offset int) ([]*models.Document, error)
	GetStats(ctx context.Context) (*models.DocumentStats, error)
}

// PipelineStorage - interface for pipeline definition persistence
type PipelineStorage interface {
	SavePipeline(ctx context.Context, def *models.PipelineDefinition) error
	GetPipeline(ctx context.Context, id string) (*models.PipelineDefinition, error)
	DeletePipeline(ctx context.Context, id string) error
	ListPipelines(ctx context.Context) ([]*models.PipelineDefinition, error)
}

// JobLogStorage - interface for append-only job log persistence
type JobLogStorage interface {
	AppendLog(ctx context.Context, entry *models.JobLogEntry) error
	GetLogs(ctx context.Context, jobID string, limit int) ([]*models.JobLogEntry, error)
	DeleteLogs(ctx context.Context, jobID string) error
}

// Persistence is the generic document-store port: collection-addressed
// create/get/update/query plus a change-notification subscription used to
// bridge external store changes into the status broadcaster.
type Persistence interface {
	Create(ctx context.Context, collection, id string, doc map[string]interface{}) error
	Get(ctx context.Context, collection, id string) (map[string]interface{}, bool, error)
	Update(ctx context.Context, collection, id string, partial map[string]interface{}) error
	Query(ctx context.Context, collection string, filters map[string]interface{}, orderBy string, limit int) ([]map[string]interface{}, error)
	// Subscribe emits the document each time it changes, until ctx is
	// cancelled. The channel closes on cancellation.
	Subscribe(ctx context.Context, collection, id string) (<-chan map[string]interface{}, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	JobStorage() JobStorage
	DocumentStorage() DocumentStorage
	PipelineStorage() PipelineStorage
	JobLogStorage() JobLogStorage
	KVStorage() KeyValueStorage
	Persistence() Persistence
	// DB exposes the underlying store for components that need raw access
	// (the priority queue builds its own keyspace)
	DB() interface{}
	Close() error
}
