// -----------------------------------------------------------------------
// Priority queue - Persistent 4-band job queue on the Badger keyspace
// -----------------------------------------------------------------------

package queue

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/ternarybob/scrutor/internal/models"
)

// ErrQueueEmpty is returned by Dequeue when no job is queued in any band
var ErrQueueEmpty = errors.New("no jobs queued")

// PriorityQueue is a persistent FIFO-per-band priority queue. Entries live
// in the Badger keyspace under composite keys that sort band-first, then by
// a monotonic sequence:
//
//	queue:jobs:{band}:{seq:020d}:{jobID}
//
// Bands are stored inverted (priority 4 -> band 0) so a plain prefix
// iteration visits the highest priority first. Persistence means queued
// jobs survive a restart; the dispatcher resumes where it left off.
//
// A single mutex guards Enqueue/Dequeue/Remove so the in-memory sequence
// counter and the keyspace stay consistent.
type PriorityQueue struct {
	db  *badgerdb.DB
	mu  sync.Mutex
	seq uint64
}

const queuePrefix = "queue:jobs:"

// NewPriorityQueue creates a priority queue over an open Badger database.
// The sequence counter resumes past the highest persisted sequence so
// FIFO order holds across restarts.
func NewPriorityQueue(db *badgerdb.DB) (*PriorityQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}

	q := &PriorityQueue{db: db}

	err := db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(queuePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			_, seq, _, err := parseQueueKey(it.Item().Key())
			if err != nil {
				continue
			}
			if seq >= q.seq {
				q.seq = seq + 1
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue keyspace: %w", err)
	}

	return q, nil
}

// Enqueue appends a job to its priority band
func (q *PriorityQueue) Enqueue(jobID string, priority int) error {
	if jobID == "" {
		return errors.New("job id is required")
	}
	if !models.IsValidPriority(priority) {
		return fmt.Errorf("priority out of range: %d", priority)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	key := queueKey(priority, q.seq, jobID)
	q.seq++

	return q.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, []byte{})
	})
}

// Dequeue pops the head of the highest-priority non-empty band. Returns
// ErrQueueEmpty when every band is empty.
func (q *PriorityQueue) Dequeue() (string, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var jobID string
	var priority int

	err := q.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(queuePrefix)
		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			return ErrQueueEmpty
		}

		key := it.Item().KeyCopy(nil)
		band, _, id, err := parseQueueKey(key)
		if err != nil {
			return fmt.Errorf("malformed queue key %q: %w", key, err)
		}

		jobID = id
		priority = models.PriorityCritical - band
		return txn.Delete(key)
	})
	if err != nil {
		return "", 0, err
	}
	return jobID, priority, nil
}

// Remove deletes a queued job from whichever band holds it. Returns true
// when an entry was found and removed - the cancellation path uses this to
// guarantee a cancelled job is never dispatched.
func (q *PriorityQueue) Remove(jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := false
	err := q.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(queuePrefix)
		suffix := ":" + jobID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			if strings.HasSuffix(string(key), suffix) {
				if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
					return err
				}
				removed = true
				return nil
			}
		}
		return nil
	})
	return removed, err
}

// CountByPriority returns the number of queued jobs per priority band
func (q *PriorityQueue) CountByPriority() (map[int]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := make(map[int]int, 4)
	err := q.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(queuePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			band, _, _, err := parseQueueKey(it.Item().Key())
			if err != nil {
				continue
			}
			counts[models.PriorityCritical-band]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Len returns the total number of queued jobs
func (q *PriorityQueue) Len() (int, error) {
	counts, err := q.CountByPriority()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// queueKey builds the composite sorted key for one queue entry. Priority 4
// maps to band 0 so lexical order equals dispatch order.
func queueKey(priority int, seq uint64, jobID string) []byte {
	band := models.PriorityCritical - priority
	return []byte(fmt.Sprintf("%s%d:%020d:%s", queuePrefix, band, seq, jobID))
}

func parseQueueKey(key []byte) (band int, seq uint64, jobID string, err error) {
	suffix := strings.TrimPrefix(string(key), queuePrefix)
	parts := strings.SplitN(suffix, ":", 3)
	if len(parts) != 3 {
		return 0, 0, "", fmt.Errorf("expected band:seq:id, got %q", suffix)
	}
	band, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, "", err
	}
	seq, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, "", err
	}
	return band, seq, parts[2], nil
}
