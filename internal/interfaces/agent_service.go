package interfaces

import "context"

// Agent is the port each analysis collaborator implements. The pipeline
// executor calls Execute with a task's declared inputs plus the results of
// its dependencies injected under "{depId}_result" keys.
//
// Implementers must be idempotent-safe to retry and must not mutate shared
// state outside their own return value.
type Agent interface {
	// Execute runs the agent against one task's inputs.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - taskName: Task id the invocation belongs to (for logging/errors)
	//   - inputs: Task inputs; structure varies by agent
	//
	// Returns:
	//   - result: Agent output (structure varies by agent)
	//   - error: nil on success, error with details on failure
	Execute(ctx context.Context, taskName string, inputs map[string]interface{}) (interface{}, error)

	// GetType returns the agent name used for registry lookup
	GetType() string
}

// AgentService provides a unified API for executing registered agents.
//
// Design Principles:
// - Agents are registered at service initialization
// - Input/output formats are agent-specific
// - LLM-backed agents share a provider factory (Claude/Gemini); deterministic
//   agents (extraction, indexing, report rendering) run locally
//
// Example Usage:
//
//	input := map[string]interface{}{
//	    "document_id": "doc_123",
//	    "content": "Document content here...",
//	}
//	result, err := agentService.Execute(ctx, "summarization", "summarize", input)
type AgentService interface {
	// RegisterAgent adds an agent to the registry, keyed by its type
	RegisterAgent(agent Agent)

	// Execute runs the named agent with a per-call timeout.
	//
	// Errors:
	//   - Unknown agent name
	//   - Agent execution failure
	//   - Timeout exceeded
	Execute(ctx context.Context, agentName, taskName string, inputs map[string]interface{}) (interface{}, error)

	// HasAgent reports whether an agent name is registered
	HasAgent(agentName string) bool

	// Close releases resources during application shutdown
	Close() error
}
