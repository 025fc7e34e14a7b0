package agents

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/services/extract"
	"github.com/ternarybob/scrutor/internal/services/llm"
	"github.com/ternarybob/scrutor/internal/services/report"
)

// fakeDocumentStorage is an in-memory DocumentStorage for agent tests.
type fakeDocumentStorage struct {
	docs map[string]*models.Document
}

func newFakeDocumentStorage() *fakeDocumentStorage {
	return &fakeDocumentStorage{docs: make(map[string]*models.Document)}
}

func (f *fakeDocumentStorage) SaveDocument(ctx context.Context, doc *models.Document) error {
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocumentStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	return doc, nil
}

func (f *fakeDocumentStorage) DeleteDocument(ctx context.Context, id string) error {
	delete(f.docs, id)
	return nil
}

func (f *fakeDocumentStorage) ListDocuments(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	return nil, nil
}

func (f *fakeDocumentStorage) GetStats(ctx context.Context) (*models.DocumentStats, error) {
	return &models.DocumentStats{}, nil
}

// fakeStorageManager satisfies StorageManager for the accessors the agent
// service touches.
type fakeStorageManager struct {
	documents *fakeDocumentStorage
}

func (f *fakeStorageManager) JobStorage() interfaces.JobStorage             { return nil }
func (f *fakeStorageManager) DocumentStorage() interfaces.DocumentStorage   { return f.documents }
func (f *fakeStorageManager) PipelineStorage() interfaces.PipelineStorage   { return nil }
func (f *fakeStorageManager) JobLogStorage() interfaces.JobLogStorage       { return nil }
func (f *fakeStorageManager) KVStorage() interfaces.KeyValueStorage         { return nil }
func (f *fakeStorageManager) Persistence() interfaces.Persistence           { return nil }
func (f *fakeStorageManager) DB() interface{}                               { return nil }
func (f *fakeStorageManager) Close() error                                  { return nil }

type agentFixture struct {
	service   *Service
	documents *fakeDocumentStorage
}

func newAgentFixture(t *testing.T) *agentFixture {
	t.Helper()

	logger := arbor.NewLogger()
	cfg := common.NewDefaultConfig()
	storage := &fakeStorageManager{documents: newFakeDocumentStorage()}

	providers := llm.NewProviderFactory(&cfg.Gemini, &cfg.Claude, &cfg.LLM, nil, logger)
	extractSvc := extract.NewService(&cfg.Extraction, logger)
	reportSvc := report.NewService(logger)

	service, err := NewService(cfg, providers, extractSvc, reportSvc, storage, logger)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return &agentFixture{service: service, documents: storage.documents}
}

func TestServiceRegistersBuiltinAgents(t *testing.T) {
	f := newAgentFixture(t)

	for _, name := range []string{
		"ocr_extraction",
		"document_analysis",
		"summarization",
		"indexing",
		"risk_assessment",
		"report_render",
	} {
		if !f.service.HasAgent(name) {
			t.Errorf("expected agent %q to be registered", name)
		}
	}
	if f.service.HasAgent("translation") {
		t.Error("unexpected agent registered")
	}
}

func TestExecuteUnknownAgent(t *testing.T) {
	f := newAgentFixture(t)

	_, err := f.service.Execute(context.Background(), "translation", "t1", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown agent") {
		t.Fatalf("expected unknown agent error, got %v", err)
	}
}

func TestIndexingAgentBuildsTermFrequencies(t *testing.T) {
	f := newAgentFixture(t)

	content := strings.Repeat("termination clause applies. ", 5) +
		strings.Repeat("payment schedule follows. ", 3) +
		"the and for with from they" // stopwords only

	raw, err := f.service.Execute(context.Background(), "indexing", "index", map[string]interface{}{
		"content":      content,
		"max_keywords": 5,
	})
	if err != nil {
		t.Fatalf("indexing failed: %v", err)
	}
	result := raw.(map[string]interface{})

	keywords := result["keywords"].([]map[string]interface{})
	if len(keywords) == 0 {
		t.Fatal("expected keywords")
	}
	if keywords[0]["term"] != "termination" && keywords[0]["term"] != "applies" && keywords[0]["term"] != "clause" {
		t.Errorf("unexpected top term %v", keywords[0]["term"])
	}
	if keywords[0]["count"] != 5 {
		t.Errorf("expected top count 5, got %v", keywords[0]["count"])
	}
	for _, kw := range keywords {
		if stopwords[kw["term"].(string)] {
			t.Errorf("stopword %v leaked into keywords", kw["term"])
		}
	}
	if result["unique_terms"].(int) < 4 {
		t.Errorf("unexpected unique_terms %v", result["unique_terms"])
	}
}

func TestIndexingAgentClampsMaxKeywords(t *testing.T) {
	f := newAgentFixture(t)

	words := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		words = append(words, fmt.Sprintf("uniqueterm%02d", i))
	}

	raw, err := f.service.Execute(context.Background(), "indexing", "index", map[string]interface{}{
		"content":      strings.Join(words, " "),
		"max_keywords": 100,
	})
	if err != nil {
		t.Fatalf("indexing failed: %v", err)
	}
	keywords := raw.(map[string]interface{})["keywords"].([]map[string]interface{})
	if len(keywords) != 25 {
		t.Errorf("expected clamp to 25 keywords, got %d", len(keywords))
	}
}

func TestOCRExtractionReturnsStoredContent(t *testing.T) {
	f := newAgentFixture(t)
	ctx := context.Background()

	doc := models.NewDocument("doc_stored", "agreement.pdf", models.SourceUpload)
	doc.Content = "# Agreement\n\nBody text."
	doc.ContentType = "application/pdf"
	doc.Pages = 3
	f.documents.docs[doc.ID] = doc

	raw, err := f.service.Execute(ctx, "ocr_extraction", "ocr", map[string]interface{}{
		"document_id": doc.ID,
	})
	if err != nil {
		t.Fatalf("ocr_extraction failed: %v", err)
	}
	result := raw.(map[string]interface{})
	if result["content"] != doc.Content {
		t.Errorf("unexpected content %v", result["content"])
	}
	if result["pages"] != 3 {
		t.Errorf("expected pages 3, got %v", result["pages"])
	}
}

func TestOCRExtractionConvertsLegacyRawHTML(t *testing.T) {
	f := newAgentFixture(t)
	ctx := context.Background()

	doc := models.NewDocument("doc_legacy", "page.html", models.SourceURL)
	doc.ContentType = "text/html"
	doc.Metadata["raw_html"] = "<html><body><main><h1>Terms</h1><p>Use at your own risk.</p></main></body></html>"
	f.documents.docs[doc.ID] = doc

	raw, err := f.service.Execute(ctx, "ocr_extraction", "ocr", map[string]interface{}{
		"document_id": doc.ID,
	})
	if err != nil {
		t.Fatalf("ocr_extraction failed: %v", err)
	}
	content := raw.(map[string]interface{})["content"].(string)
	if !strings.Contains(content, "Terms") || !strings.Contains(content, "own risk") {
		t.Errorf("conversion lost content: %q", content)
	}
	if f.documents.docs[doc.ID].Content == "" {
		t.Error("converted content was not persisted")
	}
}

func TestOCRExtractionErrors(t *testing.T) {
	f := newAgentFixture(t)
	ctx := context.Background()

	if _, err := f.service.Execute(ctx, "ocr_extraction", "ocr", map[string]interface{}{}); err == nil {
		t.Error("expected error for missing document_id")
	}
	if _, err := f.service.Execute(ctx, "ocr_extraction", "ocr", map[string]interface{}{
		"document_id": "doc_missing",
	}); err == nil {
		t.Error("expected error for unknown document")
	}

	empty := models.NewDocument("doc_empty", "empty.txt", models.SourceUpload)
	f.documents.docs[empty.ID] = empty
	if _, err := f.service.Execute(ctx, "ocr_extraction", "ocr", map[string]interface{}{
		"document_id": empty.ID,
	}); err == nil || !strings.Contains(err.Error(), "no extractable content") {
		t.Errorf("expected no-content error, got %v", err)
	}
}

func TestReportRenderAttachesPDF(t *testing.T) {
	f := newAgentFixture(t)
	ctx := context.Background()

	doc := models.NewDocument("doc_report", "agreement.pdf", models.SourceUpload)
	doc.Content = "# Agreement"
	f.documents.docs[doc.ID] = doc

	raw, err := f.service.Execute(ctx, "report_render", "report", map[string]interface{}{
		"document_id": doc.ID,
		"summarize_result": map[string]interface{}{
			"summary": "A twelve month service agreement between two parties.",
		},
		"risk_result": map[string]interface{}{
			"overall": "medium",
			"score":   55,
			"findings": []map[string]interface{}{
				{"title": "Unlimited liability", "severity": "high", "detail": "Clause 9 has no liability cap."},
			},
		},
	})
	if err != nil {
		t.Fatalf("report_render failed: %v", err)
	}
	result := raw.(map[string]interface{})
	if result["pdf_bytes"].(int) == 0 {
		t.Fatal("expected non-empty PDF")
	}
	stored := f.documents.docs[doc.ID]
	if len(stored.ReportPDF) < 4 || string(stored.ReportPDF[:4]) != "%PDF" {
		t.Error("document is missing the rendered PDF")
	}
	if title := result["title"].(string); !strings.Contains(title, "agreement.pdf") {
		t.Errorf("unexpected title %q", title)
	}
}

func TestReportRenderWithoutContentFails(t *testing.T) {
	f := newAgentFixture(t)

	doc := models.NewDocument("doc_bare", "bare.txt", models.SourceUpload)
	f.documents.docs[doc.ID] = doc

	_, err := f.service.Execute(context.Background(), "report_render", "report", map[string]interface{}{
		"document_id": doc.ID,
	})
	if err == nil || !strings.Contains(err.Error(), "no report content") {
		t.Fatalf("expected no-content error, got %v", err)
	}
}

func TestBuildReportMarkdownSectionOrder(t *testing.T) {
	markdown := buildReportMarkdown(map[string]interface{}{
		"index_result": map[string]interface{}{
			"keywords": []map[string]interface{}{
				{"term": "termination", "count": 12},
				{"term": "liability", "count": 8},
			},
		},
		"risk_result": map[string]interface{}{
			"overall": "high",
			"score":   80,
			"findings": []map[string]interface{}{
				{"title": "No cap", "severity": "high", "detail": "Line one.\nLine two with | pipe."},
			},
		},
		"summarize_result": map[string]interface{}{
			"summary": "Short summary.",
		},
	})

	summaryIdx := strings.Index(markdown, "## Summary")
	riskIdx := strings.Index(markdown, "## Risk Assessment")
	termsIdx := strings.Index(markdown, "## Key Terms")
	if summaryIdx < 0 || riskIdx < 0 || termsIdx < 0 {
		t.Fatalf("missing sections in:\n%s", markdown)
	}
	if !(summaryIdx < riskIdx && riskIdx < termsIdx) {
		t.Errorf("sections out of order in:\n%s", markdown)
	}
	if !strings.Contains(markdown, "(score 80/100)") {
		t.Error("risk score missing")
	}
	if strings.Contains(markdown, "Line one.\nLine two") {
		t.Error("newline leaked into table cell")
	}
	if !strings.Contains(markdown, "termination, liability") {
		t.Error("key terms missing")
	}
}
