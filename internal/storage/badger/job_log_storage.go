package badger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// logSequence is a global counter to ensure unique log keys even within the same nanosecond
var logSequence uint64

// JobLogStorage implements the JobLogStorage interface for Badger
type JobLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobLogStorage creates a new JobLogStorage instance
func NewJobLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobLogStorage {
	return &JobLogStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobLogStorage) AppendLog(ctx context.Context, entry *models.JobLogEntry) error {
	if entry == nil {
		return fmt.Errorf("log entry is nil")
	}
	if entry.JobID == "" {
		return fmt.Errorf("log entry job ID is required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	// Timestamp + atomic counter keeps keys unique and sortable even when
	// multiple entries land within the same nanosecond
	seq := atomic.AddUint64(&logSequence, 1)
	entry.Sequence = fmt.Sprintf("%020d_%06d", entry.Timestamp.UnixNano(), seq)
	key := fmt.Sprintf("%s_%s", entry.JobID, entry.Sequence)

	if err := s.db.Store().Insert(key, entry); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

func (s *JobLogStorage) GetLogs(ctx context.Context, jobID string, limit int) ([]*models.JobLogEntry, error) {
	var logs []models.JobLogEntry
	// Oldest first so the log reads top to bottom
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("Sequence")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}

	result := make([]*models.JobLogEntry, len(logs))
	for i := range logs {
		result[i] = &logs[i]
	}
	return result, nil
}

func (s *JobLogStorage) DeleteLogs(ctx context.Context, jobID string) error {
	if err := s.db.Store().DeleteMatching(&models.JobLogEntry{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete logs: %w", err)
	}
	return nil
}
