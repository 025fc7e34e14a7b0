package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// ---- fakes ----

type fakePipelines struct {
	defs map[string]*models.PipelineDefinition
}

func newFakePipelines() *fakePipelines {
	return &fakePipelines{defs: make(map[string]*models.PipelineDefinition)}
}

func (f *fakePipelines) SavePipeline(ctx context.Context, def *models.PipelineDefinition) error {
	f.defs[def.ID] = def
	return nil
}

func (f *fakePipelines) GetPipeline(ctx context.Context, id string) (*models.PipelineDefinition, error) {
	def, ok := f.defs[id]
	if !ok {
		return nil, fmt.Errorf("pipeline not found: %s", id)
	}
	return def, nil
}

func (f *fakePipelines) DeletePipeline(ctx context.Context, id string) error {
	delete(f.defs, id)
	return nil
}

func (f *fakePipelines) ListPipelines(ctx context.Context) ([]*models.PipelineDefinition, error) {
	defs := make([]*models.PipelineDefinition, 0, len(f.defs))
	for _, def := range f.defs {
		defs = append(defs, def)
	}
	return defs, nil
}

type fakeDocs struct {
	docs []*models.Document
}

func (f *fakeDocs) SaveDocument(ctx context.Context, doc *models.Document) error {
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeDocs) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	for _, doc := range f.docs {
		if doc.ID == id {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("document not found: %s", id)
}

func (f *fakeDocs) DeleteDocument(ctx context.Context, id string) error { return nil }

func (f *fakeDocs) ListDocuments(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	if offset >= len(f.docs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.docs) {
		end = len(f.docs)
	}
	return f.docs[offset:end], nil
}

func (f *fakeDocs) GetStats(ctx context.Context) (*models.DocumentStats, error) {
	return &models.DocumentStats{TotalDocuments: len(f.docs)}, nil
}

type createdJob struct {
	documentID string
	pipelineID string
	priority   int
}

type fakeQueue struct {
	created []createdJob
}

func (f *fakeQueue) CreateJob(ctx context.Context, documentID, userID string, priority int, metadata map[string]interface{}) (string, error) {
	pipelineID, _ := metadata["pipeline_id"].(string)
	f.created = append(f.created, createdJob{documentID: documentID, pipelineID: pipelineID, priority: priority})
	return fmt.Sprintf("job-%d", len(f.created)), nil
}

func (f *fakeQueue) UpdateProgress(ctx context.Context, jobID, stage string, percent float64, message string) bool {
	return true
}

func (f *fakeQueue) CompleteJob(ctx context.Context, jobID string, results map[string]interface{}, success bool, errorMessage string) bool {
	return true
}

func (f *fakeQueue) CancelJob(ctx context.Context, jobID, reason string) bool { return false }

func (f *fakeQueue) RetryFailedTask(ctx context.Context, jobID, taskID string, maxRetries int) (interface{}, error) {
	return nil, fmt.Errorf("job not found: %s", jobID)
}

func (f *fakeQueue) GetJob(ctx context.Context, jobID string) (*models.Job, bool) { return nil, false }

func (f *fakeQueue) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	return nil, nil
}

func (f *fakeQueue) Stats(ctx context.Context) models.QueueStats { return models.QueueStats{} }

func (f *fakeQueue) Stop() {}

// ---- helpers ----

func scheduledDefinition(id, schedule string, enabled bool) *models.PipelineDefinition {
	return &models.PipelineDefinition{
		ID:       id,
		Name:     id,
		Enabled:  enabled,
		Schedule: schedule,
		Tasks: []models.TaskSpec{
			{ID: "ocr", Agent: "ocr_extraction"},
		},
	}
}

func newTestService(pipelines *fakePipelines, docs *fakeDocs, queue *fakeQueue) *Service {
	return NewService(pipelines, docs, queue, arbor.Logger())
}

// ---- tests ----

func TestStartRegistersEnabledSchedules(t *testing.T) {
	pipelines := newFakePipelines()
	pipelines.defs["nightly"] = scheduledDefinition("nightly", "0 2 * * *", true)
	pipelines.defs["disabled"] = scheduledDefinition("disabled", "0 3 * * *", false)
	pipelines.defs["unscheduled"] = scheduledDefinition("unscheduled", "", true)

	s := newTestService(pipelines, &fakeDocs{}, &fakeQueue{})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop()

	statuses := s.GetStatuses()
	if len(statuses) != 1 {
		t.Fatalf("expected 1 registered schedule, got %d", len(statuses))
	}
	status, ok := statuses["nightly"]
	if !ok {
		t.Fatal("expected nightly schedule to be registered")
	}
	if status.Schedule != "0 2 * * *" {
		t.Errorf("unexpected schedule: %s", status.Schedule)
	}
	if status.NextRun == nil {
		t.Error("expected next run to be set")
	}
	if !s.IsRunning() {
		t.Error("expected scheduler to be running")
	}

	if err := s.Start(); err == nil {
		t.Error("expected second Start() to fail")
	}
}

func TestRegisterReplacesAndRejectsBadCron(t *testing.T) {
	s := newTestService(newFakePipelines(), &fakeDocs{}, &fakeQueue{})

	if err := s.RegisterPipeline("nightly", "0 2 * * *"); err != nil {
		t.Fatalf("RegisterPipeline() error: %v", err)
	}
	if err := s.RegisterPipeline("nightly", "30 4 * * *"); err != nil {
		t.Fatalf("re-register error: %v", err)
	}

	statuses := s.GetStatuses()
	if len(statuses) != 1 {
		t.Fatalf("expected 1 schedule after replace, got %d", len(statuses))
	}
	if statuses["nightly"].Schedule != "30 4 * * *" {
		t.Errorf("expected replaced schedule, got %s", statuses["nightly"].Schedule)
	}

	if err := s.RegisterPipeline("broken", "not a cron"); err == nil {
		t.Error("expected invalid cron expression to fail")
	}
	if err := s.RegisterPipeline("empty", ""); err == nil {
		t.Error("expected empty schedule to fail")
	}

	s.UnregisterPipeline("nightly")
	if len(s.GetStatuses()) != 0 {
		t.Error("expected no schedules after unregister")
	}
}

func TestFireEnqueuesOnlyNewDocuments(t *testing.T) {
	docs := &fakeDocs{}

	old := models.NewDocument("doc-old", "old.pdf", models.SourceUpload)
	old.CreatedAt = time.Now().Add(-time.Hour)
	docs.docs = append(docs.docs, old)

	fresh := models.NewDocument("doc-fresh", "fresh.pdf", models.SourceUpload)
	fresh.CreatedAt = time.Now()
	docs.docs = append(docs.docs, fresh)

	queue := &fakeQueue{}
	s := newTestService(newFakePipelines(), docs, queue)
	if err := s.RegisterPipeline("nightly", "0 2 * * *"); err != nil {
		t.Fatalf("RegisterPipeline() error: %v", err)
	}
	s.entries["nightly"].lastRun = time.Now().Add(-time.Minute)

	s.fire("nightly")

	if len(queue.created) != 1 {
		t.Fatalf("expected 1 job created, got %d", len(queue.created))
	}
	job := queue.created[0]
	if job.documentID != "doc-fresh" {
		t.Errorf("expected fresh document enqueued, got %s", job.documentID)
	}
	if job.pipelineID != "nightly" {
		t.Errorf("expected pipeline_id nightly, got %s", job.pipelineID)
	}
	if job.priority != models.PriorityLow {
		t.Errorf("expected low priority, got %d", job.priority)
	}

	// Later fires must not re-enqueue the same document.
	s.fire("nightly")
	if len(queue.created) != 1 {
		t.Errorf("expected no new jobs on second fire, got %d", len(queue.created))
	}

	status := s.GetStatuses()["nightly"]
	if status.LastError != "" {
		t.Errorf("unexpected last error: %s", status.LastError)
	}
	if status.LastRun == nil {
		t.Error("expected last run to be set")
	}
}

func TestFireUnknownPipelineIsNoop(t *testing.T) {
	queue := &fakeQueue{}
	s := newTestService(newFakePipelines(), &fakeDocs{}, queue)

	s.fire("missing")

	if len(queue.created) != 0 {
		t.Errorf("expected no jobs for unknown pipeline, got %d", len(queue.created))
	}
}
