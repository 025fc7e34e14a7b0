package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/services/report"
)

// ReportRenderAgent assembles the analysis results into a markdown report,
// renders it to PDF, and attaches the PDF to the document. It runs locally.
//
// Input Format:
//
//	{
//	    "document_id": "doc_123",       // Document identifier (required)
//	    "title": "Analysis Report",     // Optional report title
//	    "markdown": "# Custom...",      // Optional pre-built report body;
//	                                    // otherwise assembled from dependency
//	                                    // results (summary, analysis, risk,
//	                                    // keywords)
//	}
//
// Output Format:
//
//	{
//	    "document_id": "doc_123",
//	    "title": "Analysis Report",
//	    "pdf_bytes": 48213
//	}
type ReportRenderAgent struct {
	renderer *report.Service
	docs     interfaces.DocumentStorage
	logger   arbor.ILogger
}

func NewReportRenderAgent(renderer *report.Service, docs interfaces.DocumentStorage, logger arbor.ILogger) *ReportRenderAgent {
	return &ReportRenderAgent{
		renderer: renderer,
		docs:     docs,
		logger:   logger,
	}
}

// GetType returns the agent name used for registry lookup
func (a *ReportRenderAgent) GetType() string {
	return "report_render"
}

func (a *ReportRenderAgent) Execute(ctx context.Context, taskName string, inputs map[string]interface{}) (interface{}, error) {
	documentID, err := requireString(inputs, "document_id")
	if err != nil {
		return nil, err
	}

	doc, err := a.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", documentID, err)
	}

	title := optionalString(inputs, "title")
	if title == "" {
		title = fmt.Sprintf("Analysis Report: %s", doc.Name)
	}

	markdown := optionalString(inputs, "markdown")
	if markdown == "" {
		markdown = buildReportMarkdown(inputs)
	}
	if markdown == "" {
		return nil, fmt.Errorf("no report content: provide markdown or dependency results")
	}

	pdf, err := a.renderer.RenderPDF(markdown, title)
	if err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}

	doc.ReportPDF = pdf
	if err := a.docs.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to attach report to document %s: %w", documentID, err)
	}

	a.logger.Info().
		Str("task", taskName).
		Str("document_id", documentID).
		Int("pdf_bytes", len(pdf)).
		Msg("Report rendered and attached")

	return map[string]interface{}{
		"document_id": documentID,
		"title":       title,
		"pdf_bytes":   len(pdf),
	}, nil
}

// buildReportMarkdown assembles the report body from whatever dependency
// results are present. Sections render in a fixed order regardless of map
// iteration order.
func buildReportMarkdown(inputs map[string]interface{}) string {
	results := make([]map[string]interface{}, 0, len(inputs))
	for key, raw := range inputs {
		if !strings.HasSuffix(key, "_result") {
			continue
		}
		if result, ok := raw.(map[string]interface{}); ok {
			results = append(results, result)
		}
	}

	var b strings.Builder

	for _, r := range results {
		if summary, ok := r["summary"].(string); ok && summary != "" {
			b.WriteString("## Summary\n\n")
			b.WriteString(summary)
			b.WriteString("\n\n")
			break
		}
	}

	for _, r := range results {
		overall, ok := r["overall"].(string)
		if !ok || overall == "" {
			continue
		}
		b.WriteString("## Risk Assessment\n\n")
		b.WriteString(fmt.Sprintf("**Overall risk:** %s", overall))
		if score, ok := toInt(r["score"]); ok {
			b.WriteString(fmt.Sprintf(" (score %d/100)", score))
		}
		b.WriteString("\n\n")
		if findings, ok := r["findings"].([]map[string]interface{}); ok && len(findings) > 0 {
			b.WriteString("| Finding | Severity | Detail |\n")
			b.WriteString("|---------|----------|--------|\n")
			for _, f := range findings {
				b.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
					tableCell(f["title"]), tableCell(f["severity"]), tableCell(f["detail"])))
			}
			b.WriteString("\n")
		}
		break
	}

	for _, r := range results {
		analysis, ok := r["analysis"].(map[string]interface{})
		if !ok {
			continue
		}
		b.WriteString("## Document Structure\n\n")
		if docType, ok := analysis["document_type"].(string); ok && docType != "" {
			b.WriteString(fmt.Sprintf("**Type:** %s\n\n", docType))
		}
		if parties, ok := analysis["parties"].([]interface{}); ok && len(parties) > 0 {
			b.WriteString("**Parties:**\n\n")
			for _, p := range parties {
				b.WriteString(fmt.Sprintf("- %v\n", p))
			}
			b.WriteString("\n")
		}
		if clauses, ok := analysis["clauses"].([]interface{}); ok && len(clauses) > 0 {
			b.WriteString("| Clause | Category | Summary |\n")
			b.WriteString("|--------|----------|--------|\n")
			for _, raw := range clauses {
				if clause, ok := raw.(map[string]interface{}); ok {
					b.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
						tableCell(clause["title"]), tableCell(clause["category"]), tableCell(clause["summary"])))
				}
			}
			b.WriteString("\n")
		}
		break
	}

	for _, r := range results {
		keywords, ok := r["keywords"].([]map[string]interface{})
		if !ok || len(keywords) == 0 {
			continue
		}
		b.WriteString("## Key Terms\n\n")
		terms := make([]string, 0, len(keywords))
		for _, kw := range keywords {
			if term, ok := kw["term"].(string); ok {
				terms = append(terms, term)
			}
		}
		b.WriteString(strings.Join(terms, ", "))
		b.WriteString("\n\n")
		break
	}

	return strings.TrimSpace(b.String())
}

// tableCell flattens a value into a single markdown table cell.
func tableCell(raw interface{}) string {
	s := fmt.Sprintf("%v", raw)
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func toInt(raw interface{}) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
