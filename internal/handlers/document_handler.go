package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/services/extract"
	"github.com/ternarybob/scrutor/internal/services/fetch"
	"github.com/ternarybob/scrutor/internal/services/github"
)

// DocumentHandler handles document intake and retrieval API requests
type DocumentHandler struct {
	docs           interfaces.DocumentStorage
	extractSvc     *extract.Service
	fetchSvc       *fetch.Service
	githubSvc      *github.Service
	maxUploadBytes int64
	logger         arbor.ILogger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(
	docs interfaces.DocumentStorage,
	extractSvc *extract.Service,
	fetchSvc *fetch.Service,
	githubSvc *github.Service,
	maxUploadBytes int64,
	logger arbor.ILogger,
) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	return &DocumentHandler{
		docs:           docs,
		extractSvc:     extractSvc,
		fetchSvc:       fetchSvc,
		githubSvc:      githubSvc,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// UploadDocumentHandler accepts a document upload, extracts its content to
// markdown and persists it. Accepts multipart form data (field "file") or a
// raw body with a Content-Type header.
// POST /api/documents/upload
func (h *DocumentHandler) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		name        string
		contentType string
		data        []byte
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			WriteError(w, http.StatusBadRequest, "Failed to parse multipart form")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Form field 'file' is required")
			return
		}
		defer file.Close()

		data, err = io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to read upload")
			return
		}
		name = header.Filename
		contentType = header.Header.Get("Content-Type")
	} else {
		defer r.Body.Close()
		var err error
		data, err = io.ReadAll(io.LimitReader(r.Body, h.maxUploadBytes+1))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to read upload")
			return
		}
		name = r.URL.Query().Get("name")
		if name == "" {
			name = "upload"
		}
		contentType = r.Header.Get("Content-Type")
	}

	if int64(len(data)) > h.maxUploadBytes {
		WriteError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Upload exceeds maximum size of %d bytes", h.maxUploadBytes))
		return
	}
	if len(data) == 0 {
		WriteError(w, http.StatusBadRequest, "Upload body is empty")
		return
	}

	doc, err := h.extractSvc.ExtractDocument(ctx, name, contentType, data)
	if err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			WriteError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		h.logger.Error().Err(err).Str("name", name).Msg("Failed to extract document")
		WriteError(w, http.StatusUnprocessableEntity, "Failed to extract document content")
		return
	}

	if err := h.docs.SaveDocument(ctx, doc); err != nil {
		h.logger.Error().Err(err).Str("document_id", doc.ID).Msg("Failed to save document")
		WriteError(w, http.StatusInternalServerError, "Failed to save document")
		return
	}

	h.logger.Info().
		Str("document_id", doc.ID).
		Str("name", doc.Name).
		Int("size_bytes", doc.SizeBytes).
		Msg("Document uploaded")

	WriteJSON(w, http.StatusCreated, doc)
}

// FetchDocumentHandler downloads a URL, extracts its content and persists it
// POST /api/documents/fetch
func (h *DocumentHandler) FetchDocumentHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	defer r.Body.Close()

	if req.URL == "" {
		WriteError(w, http.StatusBadRequest, "url is required")
		return
	}

	doc, err := h.fetchSvc.FetchDocument(ctx, req.URL)
	if err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			WriteError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		h.logger.Error().Err(err).Str("url", req.URL).Msg("Failed to fetch document")
		WriteError(w, http.StatusBadGateway, "Failed to fetch document")
		return
	}

	if err := h.docs.SaveDocument(ctx, doc); err != nil {
		h.logger.Error().Err(err).Str("document_id", doc.ID).Msg("Failed to save document")
		WriteError(w, http.StatusInternalServerError, "Failed to save document")
		return
	}

	h.logger.Info().
		Str("document_id", doc.ID).
		Str("url", req.URL).
		Msg("Document fetched")

	WriteJSON(w, http.StatusCreated, doc)
}

// ImportGitHubHandler imports markdown documents from a GitHub repository.
// With a path the single file is imported; without one the repository tree
// is walked for markdown files.
// POST /api/documents/github
func (h *DocumentHandler) ImportGitHubHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Owner string `json:"owner"`
		Repo  string `json:"repo"`
		Ref   string `json:"ref,omitempty"`
		Path  string `json:"path,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	defer r.Body.Close()

	if req.Path != "" {
		doc, err := h.githubSvc.ImportFile(ctx, req.Owner, req.Repo, req.Ref, req.Path)
		if err != nil {
			var validationErr *models.ValidationError
			if errors.As(err, &validationErr) {
				WriteError(w, http.StatusBadRequest, validationErr.Error())
				return
			}
			h.logger.Error().Err(err).Str("path", req.Path).Msg("Failed to import file")
			WriteError(w, http.StatusBadGateway, "Failed to import file from GitHub")
			return
		}
		WriteJSON(w, http.StatusCreated, map[string]interface{}{
			"document_ids": []string{doc.ID},
			"count":        1,
		})
		return
	}

	documentIDs, err := h.githubSvc.ImportRepositoryDocs(ctx, req.Owner, req.Repo, req.Ref)
	if err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			WriteError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		h.logger.Error().Err(err).
			Str("owner", req.Owner).
			Str("repo", req.Repo).
			Msg("Failed to import repository docs")
		WriteError(w, http.StatusBadGateway, "Failed to import documents from GitHub")
		return
	}

	h.logger.Info().
		Str("repository", req.Owner+"/"+req.Repo).
		Int("imported", len(documentIDs)).
		Msg("GitHub import complete")

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"document_ids": documentIDs,
		"count":        len(documentIDs),
	})
}

// ListDocumentsHandler returns a paginated list of documents
// GET /api/documents?limit=50&offset=0
func (h *DocumentHandler) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, offset := GetLimitOffset(r, 50)

	docs, err := h.docs.ListDocuments(ctx, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list documents")
		WriteError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}

	// Content and report bytes stay out of list responses.
	summaries := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, documentSummary(doc))
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents": summaries,
		"count":     len(summaries),
		"limit":     limit,
		"offset":    offset,
	})
}

// GetDocumentHandler returns a single document by ID
// GET /api/documents/{id}
func (h *DocumentHandler) GetDocumentHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	documentID := PathSegment(r, 2)
	if documentID == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	doc, err := h.docs.GetDocument(ctx, documentID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Document not found")
		return
	}

	WriteJSON(w, http.StatusOK, doc)
}

// DeleteDocumentHandler deletes a document
// DELETE /api/documents/{id}
func (h *DocumentHandler) DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	documentID := PathSegment(r, 2)
	if documentID == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	if err := h.docs.DeleteDocument(ctx, documentID); err != nil {
		h.logger.Error().Err(err).Str("document_id", documentID).Msg("Failed to delete document")
		WriteError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}

	h.logger.Info().Str("document_id", documentID).Msg("Document deleted")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"document_id": documentID,
		"message":     "Document deleted successfully",
	})
}

// GetReportHandler serves the rendered PDF report for a document
// GET /api/documents/{id}/report
func (h *DocumentHandler) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	documentID := PathSegment(r, 2)
	if documentID == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	doc, err := h.docs.GetDocument(ctx, documentID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Document not found")
		return
	}

	if len(doc.ReportPDF) == 0 {
		WriteError(w, http.StatusNotFound, "No report has been rendered for this document")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name+"-report.pdf"))
	w.WriteHeader(http.StatusOK)
	w.Write(doc.ReportPDF)
}

// GetDocumentStatsHandler returns aggregate document statistics
// GET /api/documents/stats
func (h *DocumentHandler) GetDocumentStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.docs.GetStats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get document stats")
		WriteError(w, http.StatusInternalServerError, "Failed to get document stats")
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

func documentSummary(doc *models.Document) map[string]interface{} {
	summary := map[string]interface{}{
		"id":           doc.ID,
		"name":         doc.Name,
		"source":       string(doc.Source),
		"content_type": doc.ContentType,
		"size_bytes":   doc.SizeBytes,
		"has_report":   len(doc.ReportPDF) > 0,
		"created_at":   doc.CreatedAt,
		"updated_at":   doc.UpdatedAt,
	}
	if doc.Pages > 0 {
		summary["pages"] = doc.Pages
	}
	return summary
}
