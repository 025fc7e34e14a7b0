// -----------------------------------------------------------------------
// PDF Extractor - Extract text content from PDF documents
// Uses pdfcpu for Go-native PDF processing
// -----------------------------------------------------------------------

package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
)

// PDFExtractor extracts page text from PDF bytes
type PDFExtractor struct {
	logger    arbor.ILogger
	tempDir   string
	pageLimit int
}

func NewPDFExtractor(config *common.ExtractionConfig, logger arbor.ILogger) *PDFExtractor {
	tempDir := config.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "scrutor-pdf")
	}
	os.MkdirAll(tempDir, 0755)

	return &PDFExtractor{
		logger:    logger,
		tempDir:   tempDir,
		pageLimit: config.PDFPageLimit,
	}
}

// ExtractText extracts text from PDF bytes with page markers between
// pages. Returns the concatenated text and the page count.
func (e *PDFExtractor) ExtractText(ctx context.Context, pdfContent []byte) (string, int, error) {
	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("extract_%d.pdf", os.Getpid()))
	if err := os.WriteFile(tempFile, pdfContent, 0644); err != nil {
		return "", 0, fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	defer os.Remove(tempFile)

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read PDF context: %w", err)
	}

	pageCount := pdfCtx.PageCount
	extractPages := pageCount
	if e.pageLimit > 0 && extractPages > e.pageLimit {
		e.logger.Warn().
			Int("page_count", pageCount).
			Int("page_limit", e.pageLimit).
			Msg("PDF exceeds page limit, truncating extraction")
		extractPages = e.pageLimit
	}

	outDir := filepath.Join(e.tempDir, fmt.Sprintf("pages_%d", os.Getpid()))
	os.MkdirAll(outDir, 0755)
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return "", 0, fmt.Errorf("failed to extract PDF content: %w", err)
	}

	pageTexts := e.readExtractedPages(outDir)

	var fullText strings.Builder
	for pageNum := 1; pageNum <= extractPages; pageNum++ {
		text, ok := pageTexts[pageNum]
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		if fullText.Len() > 0 {
			fullText.WriteString(fmt.Sprintf("\n\n--- Page %d ---\n\n", pageNum))
		}
		fullText.WriteString(text)
	}

	e.logger.Debug().
		Int("page_count", pageCount).
		Int("extracted_pages", len(pageTexts)).
		Msg("PDF text extraction complete")

	return fullText.String(), pageCount, nil
}

// Metadata reads page count, size, and encryption state without
// extracting content
func (e *PDFExtractor) Metadata(ctx context.Context, pdfContent []byte) (pageCount int, encrypted bool, err error) {
	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("meta_%d.pdf", os.Getpid()))
	if err := os.WriteFile(tempFile, pdfContent, 0644); err != nil {
		return 0, false, fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	defer os.Remove(tempFile)

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read PDF context: %w", err)
	}

	return pdfCtx.PageCount, pdfCtx.Encrypt != nil, nil
}

// readExtractedPages maps page numbers to extracted text from pdfcpu's
// output directory. pdfcpu writes Content_page_N files.
func (e *PDFExtractor) readExtractedPages(outDir string) map[int]string {
	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		} else if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		}
	}
	return pageTexts
}
