package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// documentAnalysis is the parsed shape of the model's JSON analysis response.
// The request carries an equivalent output schema, but Claude only sees it
// restated in the prompt, so the parsed response is validated again here
// before downstream tasks consume it.
type documentAnalysis struct {
	DocumentType string           `json:"document_type" validate:"required"`
	Parties      []string         `json:"parties"`
	Sections     int              `json:"sections" validate:"gte=0"`
	Clauses      []analysisClause `json:"clauses" validate:"min=1,dive"`
}

type analysisClause struct {
	Title    string `json:"title" validate:"required"`
	Summary  string `json:"summary" validate:"required"`
	Category string `json:"category" validate:"required,oneof=obligation liability termination payment confidentiality ip general"`
}

// Validate checks the analysis against the schema tags.
func (d *documentAnalysis) Validate() error {
	return validator.New().Struct(d)
}

// toMap converts the analysis into the loosely typed form task results are
// stored and exchanged in.
func (d *documentAnalysis) toMap() (map[string]interface{}, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// parseDocumentAnalysis extracts and validates the JSON analysis from a model
// response. Clause categories are normalized to lowercase before validation,
// since models occasionally title-case the labels they were given.
func parseDocumentAnalysis(text string) (*documentAnalysis, error) {
	var analysis documentAnalysis
	if err := json.Unmarshal([]byte(extractJSONBlock(text)), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}

	analysis.DocumentType = strings.TrimSpace(analysis.DocumentType)
	for i := range analysis.Clauses {
		analysis.Clauses[i].Category = strings.ToLower(strings.TrimSpace(analysis.Clauses[i].Category))
	}

	if err := analysis.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis response: %w", err)
	}
	return &analysis, nil
}
