// -----------------------------------------------------------------------
// Extract Service - Normalize uploaded content into markdown documents
// -----------------------------------------------------------------------

package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/models"
)

// Service turns raw uploads (PDF, HTML, markdown, plain text) into
// documents whose Content field holds extracted markdown
type Service struct {
	config *common.ExtractionConfig
	pdf    *PDFExtractor
	logger arbor.ILogger
}

func NewService(config *common.ExtractionConfig, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		pdf:    NewPDFExtractor(config, logger),
		logger: logger,
	}
}

// ExtractDocument normalizes raw bytes into a Document. The content type
// selects the extraction path; unknown types are treated as plain text.
func (s *Service) ExtractDocument(ctx context.Context, name, contentType string, data []byte) (*models.Document, error) {
	if len(data) == 0 {
		return nil, &models.ValidationError{Field: "content", Reason: "document content is empty"}
	}
	if s.config.MaxUploadBytes > 0 && int64(len(data)) > s.config.MaxUploadBytes {
		return nil, &models.ValidationError{
			Field:  "content",
			Reason: fmt.Sprintf("document exceeds maximum size of %d bytes", s.config.MaxUploadBytes),
		}
	}

	doc := models.NewDocument(common.NewDocumentID(), name, models.SourceUpload)
	doc.ContentType = contentType
	doc.SizeBytes = len(data)

	normalized := strings.ToLower(contentType)
	switch {
	case strings.Contains(normalized, "pdf"):
		text, pages, err := s.pdf.ExtractText(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("pdf extraction failed: %w", err)
		}
		doc.Content = text
		doc.Pages = pages

	case strings.Contains(normalized, "html"):
		markdown, title, err := s.ExtractHTML(string(data), "")
		if err != nil {
			return nil, fmt.Errorf("html extraction failed: %w", err)
		}
		doc.Content = markdown
		if title != "" && (name == "" || name == "untitled") {
			doc.Name = title
		}
		if title != "" {
			doc.Metadata["title"] = title
		}

	default:
		// Markdown and plain text pass through as-is
		doc.Content = string(data)
	}

	if strings.TrimSpace(doc.Content) == "" {
		return nil, fmt.Errorf("no text content extracted from %s", name)
	}

	s.logger.Info().
		Str("document_id", doc.ID).
		Str("content_type", contentType).
		Int("size_bytes", doc.SizeBytes).
		Int("content_length", len(doc.Content)).
		Msg("Document content extracted")

	return doc, nil
}

// ExtractHTML selects the main content of an HTML page and converts it to
// markdown. Returns the markdown and the page title. Conversion failures
// fall back to tag stripping rather than erroring.
func (s *Service) ExtractHTML(html, baseURL string) (string, string, error) {
	if strings.TrimSpace(html) == "" {
		return "", "", fmt.Errorf("empty html content")
	}

	gq, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := strings.TrimSpace(gq.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(gq.Find("h1").First().Text())
	}

	// Prefer the semantic main-content container; fall back to body
	content := html
	for _, selector := range []string{"main", "article", "#content", ".content", "body"} {
		if sel := gq.Find(selector).First(); sel.Length() > 0 {
			if inner, err := sel.Html(); err == nil && strings.TrimSpace(inner) != "" {
				content = inner
				break
			}
		}
	}

	converter := md.NewConverter(baseURL, true, nil)
	converted, err := converter.ConvertString(content)
	if err != nil {
		s.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, using fallback")
		return stripHTMLTags(content), title, nil
	}

	if strings.TrimSpace(converted) == "" {
		s.logger.Warn().Msg("HTML to markdown conversion produced empty output, applying fallback")
		return stripHTMLTags(content), title, nil
	}

	return converted, title, nil
}

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// stripHTMLTags removes basic HTML tags for fallback cases
func stripHTMLTags(htmlStr string) string {
	stripped := tagRe.ReplaceAllString(htmlStr, "")
	cleaned := spaceRe.ReplaceAllString(stripped, " ")

	cleaned = strings.ReplaceAll(cleaned, "&amp;", "&")
	cleaned = strings.ReplaceAll(cleaned, "&lt;", "<")
	cleaned = strings.ReplaceAll(cleaned, "&gt;", ">")
	cleaned = strings.ReplaceAll(cleaned, "&quot;", "\"")
	cleaned = strings.ReplaceAll(cleaned, "&#39;", "'")
	cleaned = strings.ReplaceAll(cleaned, "&nbsp;", " ")

	return strings.TrimSpace(cleaned)
}
