package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/services/extract"
	"github.com/ternarybob/scrutor/internal/services/llm"
	"github.com/ternarybob/scrutor/internal/services/report"
)

// Service maintains a registry of analysis agents and routes execution
// requests to the appropriate agent with a per-call timeout.
//
// LLM-backed agents (document_analysis, summarization, risk_assessment) share
// one provider factory; the rest run locally without network access.
type Service struct {
	logger  arbor.ILogger
	mu      sync.RWMutex
	agents  map[string]interfaces.Agent
	timeout time.Duration
}

// NewService creates the agent service and registers the built-in agents.
//
// Parameters:
//   - config: Application configuration (timeout and temperature come from
//     the Gemini section, which carries the operation defaults)
//   - providers: Provider factory shared by all LLM-backed agents
//   - extractSvc: Extraction service used by the ocr_extraction agent
//   - reportSvc: PDF renderer used by the report_render agent
//   - storage: Storage manager for document access
//   - logger: Structured logger
//
// Errors:
//   - Invalid timeout duration in config
func NewService(
	config *common.Config,
	providers *llm.ProviderFactory,
	extractSvc *extract.Service,
	reportSvc *report.Service,
	storage interfaces.StorageManager,
	logger arbor.ILogger,
) (*Service, error) {
	timeoutStr := config.Gemini.Timeout
	if timeoutStr == "" {
		timeoutStr = "5m"
	}
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid agent timeout duration '%s': %w", timeoutStr, err)
	}

	service := &Service{
		logger:  logger,
		agents:  make(map[string]interfaces.Agent),
		timeout: timeout,
	}

	docs := storage.DocumentStorage()
	service.RegisterAgent(NewOCRExtractionAgent(docs, extractSvc, logger))
	service.RegisterAgent(NewDocumentAnalysisAgent(providers, config.Gemini.Temperature, logger))
	service.RegisterAgent(NewSummarizationAgent(providers, config.Gemini.Temperature, logger))
	service.RegisterAgent(NewIndexingAgent(logger))
	service.RegisterAgent(NewRiskAssessmentAgent(providers, logger))
	service.RegisterAgent(NewReportRenderAgent(reportSvc, docs, logger))

	logger.Info().
		Dur("timeout", timeout).
		Int("registered_agents", len(service.agents)).
		Msg("Agent service initialized")

	return service, nil
}

// RegisterAgent adds an agent to the registry, keyed by its type. A later
// registration with the same type replaces the earlier one.
func (s *Service) RegisterAgent(agent interfaces.Agent) {
	agentType := agent.GetType()
	s.mu.Lock()
	s.agents[agentType] = agent
	s.mu.Unlock()
	s.logger.Info().
		Str("agent_type", agentType).
		Msg("Agent registered")
}

// HasAgent reports whether an agent name is registered.
func (s *Service) HasAgent(agentName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.agents[agentName]
	return ok
}

// Execute runs the named agent against one task's inputs.
//
// The execution flow:
//  1. Look up the agent by name
//  2. Create timeout context
//  3. Call the agent's Execute method
//  4. Log execution duration and result
//
// Errors:
//   - Unknown agent name (not registered)
//   - Agent execution failure (invalid input, API error, etc.)
//   - Timeout exceeded
func (s *Service) Execute(ctx context.Context, agentName, taskName string, inputs map[string]interface{}) (interface{}, error) {
	s.mu.RLock()
	agent, ok := s.agents[agentName]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent: %s", agentName)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	s.logger.Debug().
		Str("agent", agentName).
		Str("task", taskName).
		Msg("Starting agent execution")

	output, err := agent.Execute(timeoutCtx, taskName, inputs)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("agent", agentName).
			Str("task", taskName).
			Dur("duration", duration).
			Msg("Agent execution failed")
		return nil, fmt.Errorf("agent execution failed: %w", err)
	}

	s.logger.Info().
		Str("agent", agentName).
		Str("task", taskName).
		Dur("duration", duration).
		Msg("Agent execution completed")

	return output, nil
}

// Close releases service resources. Agents hold no connections of their own;
// the shared provider factory is closed by the application, not here.
func (s *Service) Close() error {
	s.mu.Lock()
	s.agents = make(map[string]interfaces.Agent)
	s.mu.Unlock()
	return nil
}

var _ interfaces.AgentService = (*Service)(nil)
