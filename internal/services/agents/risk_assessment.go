package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/services/llm"
	"gopkg.in/yaml.v3"
)

// riskReport is the parsed shape of the model's YAML response.
type riskReport struct {
	Overall  string        `yaml:"overall" validate:"required,oneof=low medium high"`
	Score    int           `yaml:"score" validate:"gte=0,lte=100"`
	Findings []riskFinding `yaml:"findings" validate:"dive"`
}

type riskFinding struct {
	Title    string `yaml:"title" validate:"required"`
	Severity string `yaml:"severity" validate:"omitempty,oneof=low medium high"`
	Detail   string `yaml:"detail"`
}

// RiskAssessmentAgent scores a document for risk. The model is asked for a
// fenced YAML report, which survives long free-text `detail` fields better
// than JSON does.
//
// Input Format:
//
//	{
//	    "content": "Document text...",  // Or injected via a dependency result
//	    "model": "gemini-3-flash",      // Optional model override
//	    "max_findings": 10              // Clamped to [3, 20]
//	}
//
// Output Format:
//
//	{
//	    "overall": "medium",
//	    "score": 55,
//	    "findings": [{"title": ..., "severity": ..., "detail": ...}],
//	    "model": "gemini-3-flash-preview",
//	    "provider": "gemini"
//	}
type RiskAssessmentAgent struct {
	providers *llm.ProviderFactory
	logger    arbor.ILogger
}

func NewRiskAssessmentAgent(providers *llm.ProviderFactory, logger arbor.ILogger) *RiskAssessmentAgent {
	return &RiskAssessmentAgent{
		providers: providers,
		logger:    logger,
	}
}

// GetType returns the agent name used for registry lookup
func (a *RiskAssessmentAgent) GetType() string {
	return "risk_assessment"
}

func (a *RiskAssessmentAgent) Execute(ctx context.Context, taskName string, inputs map[string]interface{}) (interface{}, error) {
	content, ok := contentFromInputs(inputs)
	if !ok {
		return nil, fmt.Errorf("content is required, either directly or from a dependency result")
	}
	maxFindings := clampInt(inputs, "max_findings", 10, 3, 20)

	prompt := fmt.Sprintf(`Assess the risk posed to the receiving party by the following document.

Respond with a fenced YAML block in exactly this shape, nothing else:

`+"```yaml"+`
overall: low | medium | high
score: 0-100
findings:
  - title: short finding title
    severity: low | medium | high
    detail: one or two sentences
`+"```"+`

Report at most %d findings, most severe first.

Document:

%s`, maxFindings, content)

	response, err := a.providers.GenerateContent(ctx, &llm.ContentRequest{
		Messages: []llm.Message{
			{Role: "user", Content: prompt},
		},
		Model:       optionalString(inputs, "model"),
		Temperature: 0.2, // low variance keeps scores comparable between runs
	})
	if err != nil {
		return nil, fmt.Errorf("risk assessment request failed: %w", err)
	}

	report, err := parseRiskReport(response.Text)
	if err != nil {
		return nil, err
	}

	a.logger.Debug().
		Str("task", taskName).
		Str("overall", report.Overall).
		Int("score", report.Score).
		Int("findings", len(report.Findings)).
		Msg("Risk assessment completed")

	findings := make([]map[string]interface{}, 0, len(report.Findings))
	for _, f := range report.Findings {
		findings = append(findings, map[string]interface{}{
			"title":    f.Title,
			"severity": f.Severity,
			"detail":   f.Detail,
		})
	}

	return map[string]interface{}{
		"overall":  report.Overall,
		"score":    report.Score,
		"findings": findings,
		"model":    response.Model,
		"provider": string(response.Provider),
	}, nil
}

// parseRiskReport extracts and validates the YAML report from a model
// response.
func parseRiskReport(text string) (*riskReport, error) {
	body := extractFencedBlock(text, "yaml")

	var report riskReport
	if err := yaml.Unmarshal([]byte(body), &report); err != nil {
		return nil, fmt.Errorf("failed to parse risk report: %w", err)
	}

	report.Overall = strings.ToLower(strings.TrimSpace(report.Overall))
	for i := range report.Findings {
		report.Findings[i].Severity = strings.ToLower(strings.TrimSpace(report.Findings[i].Severity))
	}
	if err := validator.New().Struct(&report); err != nil {
		return nil, fmt.Errorf("invalid risk report: %w", err)
	}
	return &report, nil
}
