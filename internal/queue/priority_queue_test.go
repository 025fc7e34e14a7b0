package queue

import (
	"os"
	"testing"

	badgerdb "github.com/dgraph-io/badger/v4"
)

func newTestQueue(t *testing.T) *PriorityQueue {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "queue-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	opts := badgerdb.DefaultOptions(tmpDir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	q, err := NewPriorityQueue(db)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func TestDequeueOrderStrictByBandFIFOWithin(t *testing.T) {
	q := newTestQueue(t)

	// Priorities [1,2,2,3] submitted in order must dequeue 3,2,2,1 with
	// the two 2s keeping submission order
	submissions := []struct {
		jobID    string
		priority int
	}{
		{"job_low", 1},
		{"job_normal_first", 2},
		{"job_normal_second", 2},
		{"job_high", 3},
	}
	for _, s := range submissions {
		if err := q.Enqueue(s.jobID, s.priority); err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", s.jobID, err)
		}
	}

	want := []string{"job_high", "job_normal_first", "job_normal_second", "job_low"}
	for i, expected := range want {
		jobID, _, err := q.Dequeue()
		if err != nil {
			t.Fatalf("Dequeue %d failed: %v", i, err)
		}
		if jobID != expected {
			t.Errorf("dequeue %d: want %s, got %s", i, expected, jobID)
		}
	}

	if _, _, err := q.Dequeue(); err != ErrQueueEmpty {
		t.Errorf("expected ErrQueueEmpty, got %v", err)
	}
}

func TestDequeuePriorityRoundTrip(t *testing.T) {
	q := newTestQueue(t)

	if err := q.Enqueue("job_critical", 4); err != nil {
		t.Fatal(err)
	}
	jobID, priority, err := q.Dequeue()
	if err != nil {
		t.Fatal(err)
	}
	if jobID != "job_critical" || priority != 4 {
		t.Errorf("want job_critical/4, got %s/%d", jobID, priority)
	}
}

func TestRemoveDeletesQueuedEntry(t *testing.T) {
	q := newTestQueue(t)

	for _, id := range []string{"job_a", "job_b", "job_c"} {
		if err := q.Enqueue(id, 2); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := q.Remove("job_b")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("expected job_b to be removed")
	}

	removed, err = q.Remove("job_missing")
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("removing an unknown job should report false")
	}

	first, _, _ := q.Dequeue()
	second, _, _ := q.Dequeue()
	if first != "job_a" || second != "job_c" {
		t.Errorf("want job_a then job_c, got %s then %s", first, second)
	}
	if _, _, err := q.Dequeue(); err != ErrQueueEmpty {
		t.Errorf("queue should be empty, got %v", err)
	}
}

func TestCountByPriority(t *testing.T) {
	q := newTestQueue(t)

	plan := map[string]int{"job_1": 1, "job_2": 2, "job_3": 2, "job_4": 4}
	for id, p := range plan {
		if err := q.Enqueue(id, p); err != nil {
			t.Fatal(err)
		}
	}

	counts, err := q.CountByPriority()
	if err != nil {
		t.Fatal(err)
	}
	if counts[1] != 1 || counts[2] != 2 || counts[4] != 1 || counts[3] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}

	total, err := q.Len()
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 {
		t.Errorf("want 4 queued, got %d", total)
	}
}

func TestSequenceResumesAfterReopen(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "queue-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	opts := badgerdb.DefaultOptions(tmpDir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		t.Fatal(err)
	}

	q, err := NewPriorityQueue(db)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue("job_before", 2); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = badgerdb.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	q2, err := NewPriorityQueue(db)
	if err != nil {
		t.Fatal(err)
	}
	if err := q2.Enqueue("job_after", 2); err != nil {
		t.Fatal(err)
	}

	// FIFO must hold across the restart
	first, _, _ := q2.Dequeue()
	second, _, _ := q2.Dequeue()
	if first != "job_before" || second != "job_after" {
		t.Errorf("want job_before then job_after, got %s then %s", first, second)
	}
}
