// -----------------------------------------------------------------------
// Report Renderer - Analysis report markdown rendered to PDF
// -----------------------------------------------------------------------

package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Page geometry and typography for the A4 report layout. Body text runs
// at 9pt; findings tables drop to 8pt so severity/clause/description
// columns fit side by side.
const (
	pageMargin     = 10.0
	contentWidth   = 180.0
	pageBreakY     = 282.0 // A4 height minus bottom margin
	bodyFont       = "Arial"
	codeFont       = "Courier"
	bodySize       = 9.0
	tableSize      = 8.0
	tableLineH     = 4.0
	maxCellLines   = 8
	minColWidth    = 12.0
	cellPad        = 2.0
	bulletIndent   = 5.0
	bulletMargin   = 15.0
	lineSpacing    = 5.0
	headingSpacing = 6.0
)

// Service renders job analysis reports. Markdown produced by the
// report_render agent is parsed with goldmark and drawn into an A4 PDF.
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new report renderer
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
	}
}

// RenderPDF converts report markdown to a PDF byte slice. The title goes
// into the PDF metadata and the page footer; the visible report title is
// the markdown's own H1.
func (s *Service) RenderPDF(markdown, title string) ([]byte, error) {
	s.logger.Debug().
		Int("markdown_len", len(markdown)).
		Str("title", title).
		Msg("Rendering report PDF")

	// Intake frontmatter (mail headers, source hints) never reaches the
	// rendered report
	markdown = stripFrontmatter(markdown)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(title, true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pageMargin)
		pdf.SetFont(bodyFont, "I", 7)
		pdf.CellFormat(0, 5, fmt.Sprintf("%s - page %d", title, pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	pdf.SetFont(bodyFont, "", bodySize)

	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	writer := &reportWriter{
		pdf:    pdf,
		source: source,
	}
	if err := ast.Walk(doc, writer.walk); err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate PDF")
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate PDF output")
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	s.logger.Debug().Int("pdf_size", buf.Len()).Msg("Report PDF generated")
	return buf.Bytes(), nil
}

// reportWriter walks the markdown AST and draws each node. Inline style
// state (bold/italic from emphasis nesting) lives here because fpdf has
// no style stack of its own.
type reportWriter struct {
	pdf       *fpdf.Fpdf
	source    []byte
	bold      bool
	italic    bool
	listDepth int
}

// bodyStyle re-applies the current inline style after a block element
// changed the font
func (w *reportWriter) bodyStyle() {
	style := ""
	if w.bold {
		style += "B"
	}
	if w.italic {
		style += "I"
	}
	w.pdf.SetFont(bodyFont, style, bodySize)
}

func (w *reportWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		w.heading(node, entering)
	case *ast.Paragraph:
		if !entering {
			w.pdf.Ln(7)
		}
	case *ast.Text:
		if entering {
			w.pdf.Write(lineSpacing, string(node.Text(w.source)))
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			w.bold = entering
		} else {
			w.italic = entering
		}
		w.bodyStyle()
	case *ast.CodeSpan:
		return w.codeSpan(node, entering), nil
	case *ast.FencedCodeBlock:
		if entering {
			w.codeBlock(node.Lines())
			return ast.WalkSkipChildren, nil
		}
	case *ast.CodeBlock:
		if entering {
			w.codeBlock(node.Lines())
			return ast.WalkSkipChildren, nil
		}
	case *ast.List:
		w.list(entering)
	case *ast.ListItem:
		if entering {
			w.listItem()
		}
	case *ast.ThematicBreak:
		if entering {
			w.pdf.Ln(2)
			w.pdf.Line(bulletMargin, w.pdf.GetY(), 195, w.pdf.GetY())
			w.pdf.Ln(2)
		}
	case *extast.Table:
		if entering {
			w.table(node)
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (w *reportWriter) heading(n *ast.Heading, entering bool) {
	if !entering {
		w.pdf.Ln(headingSpacing)
		w.bodyStyle()
		return
	}
	w.pdf.Ln(headingSpacing)
	size := 10.0
	switch n.Level {
	case 1:
		size = 14
	case 2:
		size = 12
	case 3:
		size = 11
	}
	w.pdf.SetFont(bodyFont, "B", size)
}

// codeSpan draws inline code (clause references, excerpt ids) in the
// monospace font
func (w *reportWriter) codeSpan(n *ast.CodeSpan, entering bool) ast.WalkStatus {
	if !entering {
		w.bodyStyle()
		return ast.WalkSkipChildren
	}
	w.pdf.SetFont(codeFont, "", 10)
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if textNode, ok := c.(*ast.Text); ok {
			w.pdf.Write(lineSpacing, string(textNode.Segment.Value(w.source)))
		}
	}
	return ast.WalkSkipChildren
}

// codeBlock renders document excerpts quoted by the analysis agents as a
// shaded monospace block
func (w *reportWriter) codeBlock(lines *text.Segments) {
	w.pdf.Ln(2)
	w.pdf.SetFont(codeFont, "", bodySize)
	w.pdf.SetFillColor(245, 245, 245)

	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		w.pdf.MultiCell(0, lineSpacing, string(line.Value(w.source)), "", "L", true)
	}

	w.pdf.SetFillColor(255, 255, 255)
	w.bodyStyle()
	w.pdf.Ln(2)
}

func (w *reportWriter) list(entering bool) {
	if entering {
		w.listDepth++
		return
	}
	w.listDepth--
	if w.listDepth == 0 {
		w.pdf.Ln(2)
	}
}

func (w *reportWriter) listItem() {
	// Start each item on its own line; the previous inline content may
	// not have ended with a break
	w.pdf.Ln(lineSpacing)
	w.pdf.SetX(bulletMargin + float64(w.listDepth)*bulletIndent)
	w.pdf.Write(lineSpacing, "- ")
}

// table flattens header and body rows into string cells and draws the
// grid. Findings tables from the risk agent are the main consumer.
func (w *reportWriter) table(n *extast.Table) {
	var rows [][]string

	var collect func(node ast.Node)
	collect = func(node ast.Node) {
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			switch row := child.(type) {
			case *extast.TableRow:
				rows = append(rows, w.cellsOf(row))
			case *extast.TableHeader:
				collect(row)
			}
		}
	}
	collect(n)

	w.drawTable(rows)
}

func (w *reportWriter) cellsOf(n *extast.TableRow) []string {
	var row []string
	for cell := n.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if _, ok := cell.(*extast.TableCell); ok {
			row = append(row, string(cell.Text(w.source)))
		}
	}
	return row
}

func (w *reportWriter) drawTable(rows [][]string) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}
	numCols := len(rows[0])

	w.pdf.Ln(2)
	widths := w.fitColumns(rows, numCols)

	for i, row := range rows {
		header := i == 0
		if header {
			w.pdf.SetFont(bodyFont, "B", tableSize)
		} else {
			w.pdf.SetFont(bodyFont, "", tableSize)
		}

		// Tallest cell sets the row height, capped so one verbose
		// finding cannot swallow a page
		maxLines := 1
		for j, cell := range row {
			if j >= numCols {
				break
			}
			if n := len(w.wrapCell(cell, widths[j]-cellPad)); n > maxLines {
				maxLines = n
			}
		}
		if maxLines > maxCellLines {
			maxLines = maxCellLines
		}

		rowHeight := float64(maxLines)*tableLineH + cellPad
		startX := w.pdf.GetX()
		startY := w.pdf.GetY()
		if startY+rowHeight > pageBreakY {
			w.pdf.AddPage()
			startY = w.pdf.GetY()
		}

		x := startX
		for j, cell := range row {
			if j >= numCols {
				break
			}
			if header {
				w.pdf.SetFillColor(230, 230, 230)
				w.pdf.Rect(x, startY, widths[j], rowHeight, "FD")
			} else {
				w.pdf.Rect(x, startY, widths[j], rowHeight, "D")
			}
			w.pdf.SetXY(x+1, startY+1)
			w.drawCell(cell, widths[j]-cellPad, maxLines)
			x += widths[j]
		}

		w.pdf.SetXY(startX, startY+rowHeight)
	}

	w.pdf.Ln(3)
	w.bodyStyle()
}

// fitColumns sizes columns by measured content width, clamped to a third
// of the content area per column, then scales the set to the page.
func (w *reportWriter) fitColumns(rows [][]string, numCols int) []float64 {
	widths := make([]float64, numCols)

	measure := func(style string, row []string) {
		w.pdf.SetFont(bodyFont, style, tableSize)
		for i, cell := range row {
			if i >= numCols {
				break
			}
			if cw := w.pdf.GetStringWidth(cell) + 2*cellPad; cw > widths[i] {
				widths[i] = cw
			}
		}
	}
	measure("B", rows[0])
	for _, row := range rows[1:] {
		measure("", row)
	}

	maxWidth := contentWidth / 3.0
	total := 0.0
	for i := range widths {
		if widths[i] < minColWidth {
			widths[i] = minColWidth
		}
		if widths[i] > maxWidth {
			widths[i] = maxWidth
		}
		total += widths[i]
	}

	switch {
	case total > contentWidth:
		scale := contentWidth / total
		for i := range widths {
			widths[i] *= scale
			if widths[i] < minColWidth*0.8 {
				widths[i] = minColWidth * 0.8
			}
		}
	case total < contentWidth*0.9:
		scale := (contentWidth * 0.95) / total
		if scale > 1.5 {
			scale = 1.5
		}
		for i := range widths {
			widths[i] *= scale
		}
	}

	return widths
}

// wrapCell greedily packs words into lines no wider than width, measured
// with the current font
func (w *reportWriter) wrapCell(cell string, width float64) []string {
	words := strings.Fields(cell)
	if len(words) == 0 || width <= 0 {
		return []string{""}
	}

	spaceWidth := w.pdf.GetStringWidth(" ")
	lines := []string{words[0]}
	lineWidth := w.pdf.GetStringWidth(words[0])

	for _, word := range words[1:] {
		wordWidth := w.pdf.GetStringWidth(word)
		if lineWidth+spaceWidth+wordWidth <= width {
			lines[len(lines)-1] += " " + word
			lineWidth += spaceWidth + wordWidth
		} else {
			lines = append(lines, word)
			lineWidth = wordWidth
		}
	}
	return lines
}

// drawCell writes up to maxLines wrapped lines; overflow ends in an
// ellipsis
func (w *reportWriter) drawCell(cell string, width float64, maxLines int) {
	lines := w.wrapCell(cell, width)
	for i := 0; i < len(lines) && i < maxLines; i++ {
		line := lines[i]
		if i == maxLines-1 && len(lines) > maxLines {
			for w.pdf.GetStringWidth(line+"...") > width && len(line) > 3 {
				line = line[:len(line)-1]
			}
			line += "..."
		}
		w.pdf.CellFormat(width, tableLineH, line, "", 2, "L", false, 0, "")
	}
}

// stripFrontmatter removes YAML frontmatter from markdown content.
// Frontmatter is delimited by --- at the start of the content.
// This keeps intake metadata out of the rendered report.
func stripFrontmatter(markdown string) string {
	if !strings.HasPrefix(markdown, "---\n") {
		return markdown
	}

	endIdx := strings.Index(markdown[4:], "\n---\n")
	if endIdx == -1 {
		return markdown
	}

	return strings.TrimSpace(markdown[4+endIdx+5:])
}
