package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// documentsCollection is the persistence collection mirroring document
// metadata for change subscribers.
const documentsCollection = "documents"

// DocumentStorage implements the DocumentStorage interface for Badger
type DocumentStorage struct {
	db          *BadgerDB
	logger      arbor.ILogger
	persistence interfaces.Persistence
}

// NewDocumentStorage creates a new DocumentStorage instance. Saves mirror
// a metadata projection into the persistence layer so stream bridges can
// watch documents for changes.
func NewDocumentStorage(db *BadgerDB, logger arbor.ILogger, persistence interfaces.Persistence) interfaces.DocumentStorage {
	return &DocumentStorage{
		db:          db,
		logger:      logger,
		persistence: persistence,
	}
}

func (s *DocumentStorage) SaveDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	if doc.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	if err := s.db.Store().Upsert(doc.ID, doc); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	s.mirrorToPersistence(ctx, doc)
	return nil
}

// mirrorToPersistence writes a metadata projection of the document. A
// mirror failure is logged, never surfaced; the badgerhold record is the
// source of truth.
func (s *DocumentStorage) mirrorToPersistence(ctx context.Context, doc *models.Document) {
	if s.persistence == nil {
		return
	}
	projection := map[string]interface{}{
		"id":           doc.ID,
		"name":         doc.Name,
		"source":       string(doc.Source),
		"content_type": doc.ContentType,
		"pages":        doc.Pages,
		"has_report":   len(doc.ReportPDF) > 0,
		"updated_at":   doc.UpdatedAt.Format(time.RFC3339),
	}
	if err := s.persistence.Create(ctx, documentsCollection, doc.ID, projection); err != nil {
		s.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("Failed to mirror document to persistence")
	}
}

func (s *DocumentStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.Store().Get(id, &doc); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("document not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (s *DocumentStorage) DeleteDocument(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Document{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(docKey(documentsCollection, id))
	}); err != nil {
		s.logger.Warn().Err(err).Str("document_id", id).Msg("Failed to delete document mirror")
	}
	return nil
}

func (s *DocumentStorage) ListDocuments(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Skip(offset)
	}

	var docs []models.Document
	if err := s.db.Store().Find(&docs, query); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	result := make([]*models.Document, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

// GetStats walks all documents to aggregate counts. Badger keeps no
// secondary counters, so this is a full scan; the status endpoint is the
// only caller and document volumes stay small.
func (s *DocumentStorage) GetStats(ctx context.Context) (*models.DocumentStats, error) {
	var docs []models.Document
	if err := s.db.Store().Find(&docs, nil); err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}

	stats := &models.DocumentStats{
		TotalDocuments:    len(docs),
		DocumentsBySource: make(map[string]int),
		LastUpdated:       time.Now(),
	}

	totalSize := 0
	for i := range docs {
		stats.DocumentsBySource[string(docs[i].Source)]++
		totalSize += docs[i].SizeBytes
	}
	if len(docs) > 0 {
		stats.AverageSizeBytes = totalSize / len(docs)
	}

	return stats, nil
}
