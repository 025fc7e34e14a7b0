package handlers

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

type fakePipelineStorage struct {
	defs map[string]*models.PipelineDefinition
}

func newFakePipelineStorage() *fakePipelineStorage {
	return &fakePipelineStorage{defs: make(map[string]*models.PipelineDefinition)}
}

func (f *fakePipelineStorage) SavePipeline(ctx context.Context, def *models.PipelineDefinition) error {
	f.defs[def.ID] = def
	return nil
}

func (f *fakePipelineStorage) GetPipeline(ctx context.Context, id string) (*models.PipelineDefinition, error) {
	def, ok := f.defs[id]
	if !ok {
		return nil, fmt.Errorf("pipeline not found: %s", id)
	}
	return def, nil
}

func (f *fakePipelineStorage) DeletePipeline(ctx context.Context, id string) error {
	delete(f.defs, id)
	return nil
}

func (f *fakePipelineStorage) ListPipelines(ctx context.Context) ([]*models.PipelineDefinition, error) {
	defs := make([]*models.PipelineDefinition, 0, len(f.defs))
	for _, def := range f.defs {
		defs = append(defs, def)
	}
	return defs, nil
}

type fakeScheduler struct {
	registered   map[string]string
	unregistered []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{registered: make(map[string]string)}
}

func (f *fakeScheduler) Start() error { return nil }
func (f *fakeScheduler) Stop() error  { return nil }

func (f *fakeScheduler) RegisterPipeline(pipelineID, schedule string) error {
	f.registered[pipelineID] = schedule
	return nil
}

func (f *fakeScheduler) UnregisterPipeline(pipelineID string) {
	delete(f.registered, pipelineID)
	f.unregistered = append(f.unregistered, pipelineID)
}

func (f *fakeScheduler) IsRunning() bool { return true }

func (f *fakeScheduler) GetStatuses() map[string]*interfaces.ScheduleStatus {
	return map[string]*interfaces.ScheduleStatus{}
}

func TestUpsertPipelineRegistersSchedule(t *testing.T) {
	pipelines := newFakePipelineStorage()
	scheduler := newFakeScheduler()
	h := NewPipelineHandler(pipelines, scheduler, arbor.Logger())

	payload := `{
		"name": "Contract Analysis",
		"enabled": true,
		"schedule": "0 2 * * *",
		"tasks": [
			{"id": "ocr", "agent": "ocr_extraction"},
			{"id": "analysis", "agent": "document_analysis", "depends_on": ["ocr"]}
		]
	}`
	req := httptest.NewRequest("PUT", "/api/pipelines/contracts", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.UpsertPipelineHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := pipelines.defs["contracts"]; !ok {
		t.Fatal("expected pipeline to be saved")
	}
	if scheduler.registered["contracts"] != "0 2 * * *" {
		t.Errorf("expected schedule registration, got %v", scheduler.registered)
	}
}

func TestUpsertPipelineWithoutScheduleUnregisters(t *testing.T) {
	pipelines := newFakePipelineStorage()
	scheduler := newFakeScheduler()
	scheduler.registered["contracts"] = "0 2 * * *"
	h := NewPipelineHandler(pipelines, scheduler, arbor.Logger())

	payload := `{
		"name": "Contract Analysis",
		"enabled": true,
		"tasks": [{"id": "ocr", "agent": "ocr_extraction"}]
	}`
	req := httptest.NewRequest("PUT", "/api/pipelines/contracts", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.UpsertPipelineHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(scheduler.registered) != 0 {
		t.Errorf("expected schedule to be unregistered, got %v", scheduler.registered)
	}
}

func TestUpsertPipelineValidation(t *testing.T) {
	h := NewPipelineHandler(newFakePipelineStorage(), newFakeScheduler(), arbor.Logger())

	tests := []struct {
		name    string
		payload string
	}{
		{"no_tasks", `{"name": "Empty", "tasks": []}`},
		{"unknown_dependency", `{"name": "Bad", "tasks": [{"id": "a", "agent": "x", "depends_on": ["missing"]}]}`},
		{"duplicate_task", `{"name": "Dup", "tasks": [{"id": "a", "agent": "x"}, {"id": "a", "agent": "y"}]}`},
		{"bad_cron", `{"name": "Cron", "schedule": "whenever", "tasks": [{"id": "a", "agent": "x"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("PUT", "/api/pipelines/bad", strings.NewReader(tt.payload))
			rec := httptest.NewRecorder()
			h.UpsertPipelineHandler(rec, req)
			if rec.Code != 400 {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestDeletePipelineUnregistersSchedule(t *testing.T) {
	pipelines := newFakePipelineStorage()
	pipelines.defs["contracts"] = &models.PipelineDefinition{ID: "contracts", Name: "Contracts"}
	scheduler := newFakeScheduler()
	scheduler.registered["contracts"] = "0 2 * * *"
	h := NewPipelineHandler(pipelines, scheduler, arbor.Logger())

	req := httptest.NewRequest("DELETE", "/api/pipelines/contracts", nil)
	rec := httptest.NewRecorder()
	h.DeletePipelineHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := pipelines.defs["contracts"]; ok {
		t.Error("expected pipeline to be deleted")
	}
	if len(scheduler.registered) != 0 {
		t.Errorf("expected schedule removed, got %v", scheduler.registered)
	}
}

func TestGetPipelineNotFound(t *testing.T) {
	h := NewPipelineHandler(newFakePipelineStorage(), newFakeScheduler(), arbor.Logger())

	req := httptest.NewRequest("GET", "/api/pipelines/missing", nil)
	rec := httptest.NewRecorder()
	h.GetPipelineHandler(rec, req)

	if rec.Code != 404 {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
