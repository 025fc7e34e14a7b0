package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/services/llm"
)

// SummarizationAgent produces a plain-prose summary of a document.
//
// Input Format:
//
//	{
//	    "content": "Document text...",  // Or injected via a dependency result
//	    "model": "claude-sonnet-4",     // Optional model override
//	    "max_sentences": 5              // Clamped to [2, 12]
//	}
//
// Output Format:
//
//	{
//	    "summary": "The agreement covers...",
//	    "model": "claude-sonnet-4-20250514",
//	    "provider": "claude"
//	}
type SummarizationAgent struct {
	providers   *llm.ProviderFactory
	temperature float32
	logger      arbor.ILogger
}

func NewSummarizationAgent(providers *llm.ProviderFactory, temperature float32, logger arbor.ILogger) *SummarizationAgent {
	return &SummarizationAgent{
		providers:   providers,
		temperature: temperature,
		logger:      logger,
	}
}

// GetType returns the agent name used for registry lookup
func (a *SummarizationAgent) GetType() string {
	return "summarization"
}

func (a *SummarizationAgent) Execute(ctx context.Context, taskName string, inputs map[string]interface{}) (interface{}, error) {
	content, ok := contentFromInputs(inputs)
	if !ok {
		return nil, fmt.Errorf("content is required, either directly or from a dependency result")
	}
	maxSentences := clampInt(inputs, "max_sentences", 5, 2, 12)

	prompt := fmt.Sprintf(
		"Summarize the following document in at most %d sentences. Focus on what the document is, who it involves, and what it obliges or grants. Respond with the summary only.\n\n%s",
		maxSentences, content)

	response, err := a.providers.GenerateContent(ctx, &llm.ContentRequest{
		Messages: []llm.Message{
			{Role: "user", Content: prompt},
		},
		Model:       optionalString(inputs, "model"),
		Temperature: a.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("summarization request failed: %w", err)
	}

	summary := strings.TrimSpace(response.Text)
	if summary == "" {
		return nil, fmt.Errorf("model returned an empty summary")
	}

	a.logger.Debug().
		Str("task", taskName).
		Str("model", response.Model).
		Int("chars", len(summary)).
		Msg("Summarization completed")

	return map[string]interface{}{
		"summary":  summary,
		"model":    response.Model,
		"provider": string(response.Provider),
	}, nil
}
