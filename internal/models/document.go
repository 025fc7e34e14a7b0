package models

import "time"

// DocumentSource identifies where a document entered the system
type DocumentSource string

const (
	SourceUpload DocumentSource = "upload"
	SourceURL    DocumentSource = "url"
	SourceEmail  DocumentSource = "email"
	SourceGitHub DocumentSource = "github"
)

// Document represents a normalized document awaiting or holding analysis.
// PRIMARY CONTENT FORMAT: Markdown (Content field). Upload/URL/email/github
// intake paths all converge on extracted markdown before a job runs.
type Document struct {
	// Identity
	ID     string         `json:"id" badgerhold:"key"` // doc_{uuid}
	Source DocumentSource `json:"source" badgerhold:"index"`
	Name   string         `json:"name"`

	// Content (markdown-first)
	ContentType string `json:"content_type"` // original MIME type (application/pdf, text/html, ...)
	Content     string `json:"content"`      // extracted markdown text
	SizeBytes   int    `json:"size_bytes"`
	Pages       int    `json:"pages,omitempty"` // PDF page count when known

	// Source-specific data: origin URL, mail sender, repo path, etc.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Rendered analysis report, attached after a report_render task
	ReportPDF []byte `json:"report_pdf,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDocument creates a document with timestamps set
func NewDocument(id, name string, source DocumentSource) *Document {
	now := time.Now()
	return &Document{
		ID:        id,
		Name:      name,
		Source:    source,
		Metadata:  make(map[string]interface{}),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DocumentStats summarizes stored documents for the status endpoint
type DocumentStats struct {
	TotalDocuments    int            `json:"total_documents"`
	DocumentsBySource map[string]int `json:"documents_by_source"`
	AverageSizeBytes  int            `json:"average_size_bytes"`
	LastUpdated       time.Time      `json:"last_updated"`
}
