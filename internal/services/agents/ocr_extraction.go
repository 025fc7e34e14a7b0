package agents

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/services/extract"
)

// OCRExtractionAgent resolves the text content of a document so downstream
// tasks can operate on markdown. It runs locally: intake already converted
// PDF and HTML payloads, so the common case is reading the stored content
// back out. Documents ingested before conversion existed may still carry raw
// HTML in metadata; those are converted here.
//
// Input Format:
//
//	{
//	    "document_id": "doc_123"   // Document identifier (required)
//	}
//
// Output Format:
//
//	{
//	    "document_id": "doc_123",
//	    "content": "# Extracted markdown...",
//	    "content_type": "application/pdf",
//	    "pages": 12,
//	    "chars": 48211
//	}
type OCRExtractionAgent struct {
	docs    interfaces.DocumentStorage
	extract *extract.Service
	logger  arbor.ILogger
}

func NewOCRExtractionAgent(docs interfaces.DocumentStorage, extractSvc *extract.Service, logger arbor.ILogger) *OCRExtractionAgent {
	return &OCRExtractionAgent{
		docs:    docs,
		extract: extractSvc,
		logger:  logger,
	}
}

// GetType returns the agent name used for registry lookup
func (a *OCRExtractionAgent) GetType() string {
	return "ocr_extraction"
}

// Execute loads the document and returns its markdown content.
func (a *OCRExtractionAgent) Execute(ctx context.Context, taskName string, inputs map[string]interface{}) (interface{}, error) {
	documentID, err := requireString(inputs, "document_id")
	if err != nil {
		return nil, err
	}

	doc, err := a.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", documentID, err)
	}

	content := doc.Content
	if content == "" {
		// Legacy documents stored the raw page before markdown conversion
		// moved to intake
		rawHTML, _ := doc.Metadata["raw_html"].(string)
		if rawHTML == "" {
			return nil, fmt.Errorf("document %s has no extractable content", documentID)
		}
		baseURL, _ := doc.Metadata["url"].(string)
		markdown, _, err := a.extract.ExtractHTML(rawHTML, baseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to convert document %s: %w", documentID, err)
		}
		content = markdown

		doc.Content = content
		if err := a.docs.SaveDocument(ctx, doc); err != nil {
			a.logger.Warn().
				Err(err).
				Str("document_id", documentID).
				Msg("Failed to persist converted content")
		}
	}

	a.logger.Debug().
		Str("task", taskName).
		Str("document_id", documentID).
		Int("chars", len(content)).
		Msg("Document content resolved")

	return map[string]interface{}{
		"document_id":  documentID,
		"content":      content,
		"content_type": doc.ContentType,
		"pages":        doc.Pages,
		"chars":        len(content),
	}, nil
}
