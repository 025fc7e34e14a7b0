package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// mockAgentService records every Execute call and returns canned results
// or errors per agent name
type mockAgentService struct {
	mu        sync.Mutex
	calls     []mockCall
	failAgent string
	failErr   error
}

type mockCall struct {
	agentName string
	taskName  string
	inputs    map[string]interface{}
}

func (m *mockAgentService) RegisterAgent(agent interfaces.Agent) {}

func (m *mockAgentService) Execute(ctx context.Context, agentName, taskName string, inputs map[string]interface{}) (interface{}, error) {
	m.mu.Lock()
	snapshot := make(map[string]interface{}, len(inputs))
	for k, v := range inputs {
		snapshot[k] = v
	}
	m.calls = append(m.calls, mockCall{agentName: agentName, taskName: taskName, inputs: snapshot})
	m.mu.Unlock()

	if m.failAgent == agentName {
		return nil, m.failErr
	}
	return fmt.Sprintf("%s_output", taskName), nil
}

func (m *mockAgentService) HasAgent(agentName string) bool { return true }
func (m *mockAgentService) Close() error                   { return nil }

func (m *mockAgentService) callFor(taskName string) (mockCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c.taskName == taskName {
			return c, true
		}
	}
	return mockCall{}, false
}

func diamondTasks() []*models.Task {
	return []*models.Task{
		models.NewTask("ocr", "ocr_extraction", map[string]interface{}{"document_id": "doc_1"}, nil),
		models.NewTask("analysis", "document_analysis", nil, []string{"ocr"}),
		models.NewTask("summarize", "summarization", nil, []string{"analysis"}),
		models.NewTask("index", "indexing", nil, []string{"analysis"}),
		models.NewTask("risk", "risk_assessment", nil, []string{"summarize", "index"}),
	}
}

func TestRunAcyclicGraphCompletesAllTasks(t *testing.T) {
	agents := &mockAgentService{}
	exec := NewExecutor(agents, arbor.NewLogger())
	tasks := diamondTasks()

	results, err := exec.Run(context.Background(), tasks, nil, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(results) != len(tasks) {
		t.Errorf("expected %d results, got %d", len(tasks), len(results))
	}
	for _, task := range tasks {
		if task.Status != models.TaskStatusCompleted {
			t.Errorf("task %s not completed: %s", task.ID, task.Status)
		}
		if results[task.ID] != task.ID+"_output" {
			t.Errorf("task %s result mismatch: %v", task.ID, results[task.ID])
		}
		if task.StartedAt == nil || task.CompletedAt == nil {
			t.Errorf("task %s missing timestamps", task.ID)
		}
	}
}

func TestRunInjectsOnlyDeclaredDependencyResults(t *testing.T) {
	agents := &mockAgentService{}
	exec := NewExecutor(agents, arbor.NewLogger())

	if _, err := exec.Run(context.Background(), diamondTasks(), nil, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	riskCall, ok := agents.callFor("risk")
	if !ok {
		t.Fatal("risk task never executed")
	}
	if riskCall.inputs["summarize_result"] != "summarize_output" {
		t.Errorf("missing summarize dependency result: %v", riskCall.inputs)
	}
	if riskCall.inputs["index_result"] != "index_output" {
		t.Errorf("missing index dependency result: %v", riskCall.inputs)
	}
	if _, present := riskCall.inputs["ocr_result"]; present {
		t.Error("risk received a result from an undeclared dependency")
	}

	analysisCall, _ := agents.callFor("analysis")
	if analysisCall.inputs["ocr_result"] != "ocr_output" {
		t.Errorf("analysis missing ocr dependency result: %v", analysisCall.inputs)
	}
	if _, present := analysisCall.inputs["summarize_result"]; present {
		t.Error("analysis received a downstream task's result")
	}
}

func TestRunCyclicGraphFailsWithDeadlockError(t *testing.T) {
	agents := &mockAgentService{}
	exec := NewExecutor(agents, arbor.NewLogger())

	tasks := []*models.Task{
		models.NewTask("a", "agent_a", nil, []string{"c"}),
		models.NewTask("b", "agent_b", nil, []string{"a"}),
		models.NewTask("c", "agent_c", nil, []string{"b"}),
	}

	_, err := exec.Run(context.Background(), tasks, nil, nil)
	if err == nil {
		t.Fatal("expected deadlock error, got nil")
	}

	var deadlock *models.DependencyDeadlockError
	if !errors.As(err, &deadlock) {
		t.Fatalf("expected DependencyDeadlockError, got %T: %v", err, err)
	}
	if len(deadlock.TaskIDs) != 3 {
		t.Errorf("expected 3 stuck tasks, got %v", deadlock.TaskIDs)
	}
	if len(agents.calls) != 0 {
		t.Errorf("no agent should run in a fully cyclic graph, got %d calls", len(agents.calls))
	}
}

func TestRunTaskFailureAbortsPipeline(t *testing.T) {
	agents := &mockAgentService{failAgent: "document_analysis", failErr: errors.New("model unavailable")}
	exec := NewExecutor(agents, arbor.NewLogger())
	tasks := diamondTasks()

	results, err := exec.Run(context.Background(), tasks, nil, nil)
	if err == nil {
		t.Fatal("expected pipeline failure")
	}
	if results != nil {
		t.Error("failed run must not expose partial results")
	}

	var agentErr *models.AgentExecutionError
	if !errors.As(err, &agentErr) {
		t.Fatalf("expected AgentExecutionError, got %T: %v", err, err)
	}
	if agentErr.TaskID != "analysis" {
		t.Errorf("expected failing task analysis, got %s", agentErr.TaskID)
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Errorf("error should carry the agent message: %v", err)
	}

	// Downstream tasks never started
	for _, task := range tasks {
		switch task.ID {
		case "ocr":
			if task.Status != models.TaskStatusCompleted {
				t.Errorf("ocr should have completed, got %s", task.Status)
			}
		case "analysis":
			if task.Status != models.TaskStatusFailed {
				t.Errorf("analysis should have failed, got %s", task.Status)
			}
		default:
			if task.Status != models.TaskStatusPending {
				t.Errorf("task %s should not have started, got %s", task.ID, task.Status)
			}
		}
	}
}

func TestRunProgressCallbacksFollowStageOrder(t *testing.T) {
	agents := &mockAgentService{}
	exec := NewExecutor(agents, arbor.NewLogger())
	tasks := diamondTasks()

	stageFor := func(taskID string) string {
		return map[string]string{
			"ocr":       "OCR",
			"analysis":  "ANALYSIS",
			"summarize": "SUMMARIZATION",
			"index":     "ANALYSIS",
			"risk":      "RISK_ASSESSMENT",
		}[taskID]
	}

	var mu sync.Mutex
	var stages []string
	var percents []float64
	onProgress := func(stage string, percent float64) {
		mu.Lock()
		stages = append(stages, stage)
		percents = append(percents, percent)
		mu.Unlock()
	}

	if _, err := exec.Run(context.Background(), tasks, stageFor, onProgress); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(stages) != 5 {
		t.Fatalf("expected 5 progress callbacks, got %d", len(stages))
	}
	if stages[0] != "OCR" || stages[1] != "ANALYSIS" || stages[4] != "RISK_ASSESSMENT" {
		t.Errorf("unexpected stage order: %v", stages)
	}
	// summarize and index race within their batch
	middle := stages[2] + "," + stages[3]
	if middle != "SUMMARIZATION,ANALYSIS" && middle != "ANALYSIS,SUMMARIZATION" {
		t.Errorf("unexpected middle batch stages: %v", stages)
	}

	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Errorf("progress decreased: %v", percents)
		}
	}
	if percents[len(percents)-1] != 100 {
		t.Errorf("final progress should be 100, got %f", percents[len(percents)-1])
	}
}

func TestRunCancelledBetweenBatches(t *testing.T) {
	agents := &mockAgentService{}
	exec := NewExecutor(agents, arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Run(ctx, diamondTasks(), nil, nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(agents.calls) != 0 {
		t.Errorf("no agent should run after cancellation, got %d calls", len(agents.calls))
	}
}

func TestValidateRejectsBadGraphs(t *testing.T) {
	cases := []struct {
		name  string
		tasks []*models.Task
	}{
		{"empty", nil},
		{"duplicate ids", []*models.Task{
			models.NewTask("a", "agent", nil, nil),
			models.NewTask("a", "agent", nil, nil),
		}},
		{"unknown dependency", []*models.Task{
			models.NewTask("a", "agent", nil, []string{"ghost"}),
		}},
		{"missing agent", []*models.Task{
			models.NewTask("a", "", nil, nil),
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.tasks)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %T", err)
			}
		})
	}
}
