package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/models"
)

func newTestService() *Service {
	cfg := common.NewDefaultConfig()
	return NewService(&cfg.Extraction, arbor.NewLogger())
}

func TestExtractHTMLDocument(t *testing.T) {
	s := newTestService()
	html := `<html><head><title>Service Agreement</title></head><body>
<main>
  <h1>Service Agreement</h1>
  <p>This agreement is entered into by the parties below.</p>
  <ul><li>Term: 12 months</li><li>Notice: 30 days</li></ul>
</main>
<footer>ignored boilerplate</footer>
</body></html>`

	doc, err := s.ExtractDocument(context.Background(), "agreement.html", "text/html", []byte(html))
	if err != nil {
		t.Fatalf("ExtractDocument failed: %v", err)
	}

	if doc.ContentType != "text/html" {
		t.Errorf("content type lost: %s", doc.ContentType)
	}
	if !strings.Contains(doc.Content, "Service Agreement") {
		t.Errorf("heading missing from markdown: %q", doc.Content)
	}
	if !strings.Contains(doc.Content, "Term: 12 months") {
		t.Errorf("list content missing: %q", doc.Content)
	}
	if strings.Contains(doc.Content, "ignored boilerplate") {
		t.Errorf("footer content should not be selected: %q", doc.Content)
	}
	if doc.Metadata["title"] != "Service Agreement" {
		t.Errorf("title not captured: %v", doc.Metadata["title"])
	}
	if !strings.HasPrefix(doc.ID, "doc_") {
		t.Errorf("unexpected document id: %s", doc.ID)
	}
}

func TestExtractPlainTextPassthrough(t *testing.T) {
	s := newTestService()

	text := "# Contract\n\nPlain markdown body."
	doc, err := s.ExtractDocument(context.Background(), "contract.md", "text/markdown", []byte(text))
	if err != nil {
		t.Fatalf("ExtractDocument failed: %v", err)
	}
	if doc.Content != text {
		t.Errorf("markdown must pass through unchanged, got %q", doc.Content)
	}
}

func TestExtractRejectsEmptyAndOversized(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Extraction.MaxUploadBytes = 16
	s := NewService(&cfg.Extraction, arbor.NewLogger())

	var verr *models.ValidationError
	_, err := s.ExtractDocument(context.Background(), "empty.txt", "text/plain", nil)
	if !errors.As(err, &verr) {
		t.Errorf("empty content: want ValidationError, got %v", err)
	}

	_, err = s.ExtractDocument(context.Background(), "big.txt", "text/plain", []byte(strings.Repeat("x", 64)))
	if !errors.As(err, &verr) {
		t.Errorf("oversized content: want ValidationError, got %v", err)
	}
}

func TestExtractHTMLFallbackOnMalformedMarkup(t *testing.T) {
	s := newTestService()

	// goquery tolerates broken markup; the result should still be text
	markdown, _, err := s.ExtractHTML("<div><p>unclosed paragraph<span>nested", "")
	if err != nil {
		t.Fatalf("ExtractHTML failed: %v", err)
	}
	if !strings.Contains(markdown, "unclosed paragraph") {
		t.Errorf("content lost: %q", markdown)
	}
}

func TestStripHTMLTags(t *testing.T) {
	got := stripHTMLTags("<p>a &amp; b &lt;c&gt;</p>  <br/>extra")
	if got != "a & b <c> extra" {
		t.Errorf("unexpected stripped output: %q", got)
	}
}
