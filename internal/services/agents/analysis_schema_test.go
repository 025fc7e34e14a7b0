package agents

import (
	"strings"
	"testing"
)

func TestParseDocumentAnalysis(t *testing.T) {
	text := "Here is the analysis:\n```json\n" +
		`{"document_type": "service agreement", "parties": ["Acme Pty Ltd", "Widget Co"], "sections": 14,
		  "clauses": [{"title": "Liability cap", "summary": "Caps liability at fees paid.", "category": "Liability"}]}` +
		"\n```"

	analysis, err := parseDocumentAnalysis(text)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if analysis.DocumentType != "service agreement" || analysis.Sections != 14 {
		t.Errorf("unexpected analysis %+v", analysis)
	}
	if len(analysis.Clauses) != 1 || analysis.Clauses[0].Category != "liability" {
		t.Errorf("category not normalized: %+v", analysis.Clauses)
	}
}

func TestParseDocumentAnalysisRejectsInvalid(t *testing.T) {
	// Missing document_type
	noType := `{"clauses": [{"title": "t", "summary": "s", "category": "general"}]}`
	if _, err := parseDocumentAnalysis(noType); err == nil || !strings.Contains(err.Error(), "invalid analysis response") {
		t.Errorf("expected missing type error, got %v", err)
	}

	// Category outside the label set
	badCategory := `{"document_type": "nda", "clauses": [{"title": "t", "summary": "s", "category": "exotic"}]}`
	if _, err := parseDocumentAnalysis(badCategory); err == nil || !strings.Contains(err.Error(), "invalid analysis response") {
		t.Errorf("expected category error, got %v", err)
	}

	// No clauses at all
	if _, err := parseDocumentAnalysis(`{"document_type": "nda", "clauses": []}`); err == nil {
		t.Error("expected empty clauses error")
	}

	if _, err := parseDocumentAnalysis("not json"); err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestDocumentAnalysisToMap(t *testing.T) {
	analysis := &documentAnalysis{
		DocumentType: "lease",
		Parties:      []string{"Landlord", "Tenant"},
		Sections:     6,
		Clauses: []analysisClause{
			{Title: "Term", Summary: "Two year fixed term.", Category: "general"},
		},
	}

	result, err := analysis.toMap()
	if err != nil {
		t.Fatalf("toMap failed: %v", err)
	}
	if result["document_type"] != "lease" {
		t.Errorf("unexpected map %+v", result)
	}
	clauses, ok := result["clauses"].([]interface{})
	if !ok || len(clauses) != 1 {
		t.Errorf("clauses not converted: %+v", result["clauses"])
	}
}
