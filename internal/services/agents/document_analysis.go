package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/services/llm"
)

// DocumentAnalysisAgent extracts the structure of a document: its sections,
// the parties it names, and per-clause summaries with a category label. The
// response is constrained to a JSON schema so the output is machine-usable
// by downstream tasks.
//
// Input Format:
//
//	{
//	    "document_id": "doc_123",        // Optional, echoed into output
//	    "content": "Document text...",   // Or injected via a dependency result
//	    "model": "gemini-3-flash",       // Optional model override
//	    "max_clauses": 20                // Clamped to [5, 50]
//	}
//
// Output Format:
//
//	{
//	    "analysis": {
//	        "document_type": "service agreement",
//	        "parties": ["Acme Pty Ltd", "Widget Co"],
//	        "sections": 14,
//	        "clauses": [{"title": ..., "summary": ..., "category": ...}]
//	    },
//	    "model": "gemini-3-flash-preview",
//	    "provider": "gemini"
//	}
type DocumentAnalysisAgent struct {
	providers   *llm.ProviderFactory
	temperature float32
	logger      arbor.ILogger
}

func NewDocumentAnalysisAgent(providers *llm.ProviderFactory, temperature float32, logger arbor.ILogger) *DocumentAnalysisAgent {
	return &DocumentAnalysisAgent{
		providers:   providers,
		temperature: temperature,
		logger:      logger,
	}
}

// GetType returns the agent name used for registry lookup
func (a *DocumentAnalysisAgent) GetType() string {
	return "document_analysis"
}

// analysisSchema constrains the model response. Gemini enforces it natively;
// for Claude the schema is restated in the prompt and the response parsed
// leniently.
func analysisSchema(maxClauses int) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"document_type": map[string]interface{}{"type": "string"},
			"parties": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"sections": map[string]interface{}{"type": "integer"},
			"clauses": map[string]interface{}{
				"type":     "array",
				"maxItems": maxClauses,
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"title":    map[string]interface{}{"type": "string"},
						"summary":  map[string]interface{}{"type": "string"},
						"category": map[string]interface{}{"type": "string"},
					},
					"required": []interface{}{"title", "summary", "category"},
				},
			},
		},
		"required": []interface{}{"document_type", "clauses"},
	}
}

// Execute runs the analysis against the resolved document content.
func (a *DocumentAnalysisAgent) Execute(ctx context.Context, taskName string, inputs map[string]interface{}) (interface{}, error) {
	content, ok := contentFromInputs(inputs)
	if !ok {
		return nil, fmt.Errorf("content is required, either directly or from a dependency result")
	}
	maxClauses := clampInt(inputs, "max_clauses", 20, 5, 50)

	var prompt strings.Builder
	prompt.WriteString("Analyze the structure of the following document. Identify the document type, ")
	prompt.WriteString("the parties involved, the number of top-level sections, and the significant ")
	prompt.WriteString(fmt.Sprintf("clauses (at most %d). For each clause give a short title, a one-sentence ", maxClauses))
	prompt.WriteString("summary, and a category label (obligation, liability, termination, payment, ")
	prompt.WriteString("confidentiality, ip, or general).\n\n")
	prompt.WriteString("Respond with a single JSON object matching this shape:\n")
	prompt.WriteString(`{"document_type": "...", "parties": ["..."], "sections": 0, "clauses": [{"title": "...", "summary": "...", "category": "..."}]}`)
	prompt.WriteString("\n\nDocument:\n\n")
	prompt.WriteString(content)

	response, err := a.providers.GenerateContent(ctx, &llm.ContentRequest{
		Messages: []llm.Message{
			{Role: "user", Content: prompt.String()},
		},
		Model:             optionalString(inputs, "model"),
		Temperature:       a.temperature,
		SystemInstruction: "You are a document analyst. Respond only with the requested JSON object, no prose.",
		OutputSchema:      analysisSchema(maxClauses),
	})
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}

	analysis, err := parseDocumentAnalysis(response.Text)
	if err != nil {
		return nil, err
	}

	a.logger.Debug().
		Str("task", taskName).
		Str("model", response.Model).
		Str("document_type", analysis.DocumentType).
		Int("clauses", len(analysis.Clauses)).
		Msg("Document analysis completed")

	analysisMap, err := analysis.toMap()
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis: %w", err)
	}

	return map[string]interface{}{
		"document_id": optionalString(inputs, "document_id"),
		"analysis":    analysisMap,
		"model":       response.Model,
		"provider":    string(response.Provider),
	}, nil
}
