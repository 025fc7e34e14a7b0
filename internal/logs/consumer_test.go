package logs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/status"
)

type fakeJobLogs struct {
	mu      sync.Mutex
	entries []*models.JobLogEntry
}

func (f *fakeJobLogs) AppendLog(ctx context.Context, entry *models.JobLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeJobLogs) GetLogs(ctx context.Context, jobID string, limit int) ([]*models.JobLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.JobLogEntry
	for _, e := range f.entries {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeJobLogs) DeleteLogs(ctx context.Context, jobID string) error { return nil }

func (f *fakeJobLogs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *fakeJobLogs) last() *models.JobLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return nil
	}
	return f.entries[len(f.entries)-1]
}

func newTestConsumer(t *testing.T, minLevel string) (*Consumer, *fakeJobLogs, interfaces.StreamConnection) {
	t.Helper()
	jobLogs := &fakeJobLogs{}
	broadcaster := status.NewBroadcaster(nil, arbor.NewLogger())
	t.Cleanup(func() { broadcaster.Close() })

	conn, err := broadcaster.OpenConnection("ops", "", models.TransportSSE)
	if err != nil {
		t.Fatal(err)
	}

	c := NewConsumer(jobLogs, broadcaster, arbor.NewLogger(), minLevel)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Stop() })
	return c, jobLogs, conn
}

func send(c *Consumer, events ...arbormodels.LogEvent) {
	c.GetChannel() <- events
}

func waitForEvent(t *testing.T, conn interfaces.StreamConnection) models.StreamEvent {
	t.Helper()
	select {
	case ev, ok := <-conn.Events():
		if !ok {
			t.Fatal("connection closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("no stream event received")
	}
	return models.StreamEvent{}
}

func assertNoStreamEvent(t *testing.T, conn interfaces.StreamConnection) {
	t.Helper()
	select {
	case ev := <-conn.Events():
		t.Fatalf("unexpected stream event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitForPersisted(t *testing.T, jobLogs *fakeJobLogs, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if jobLogs.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d persisted entries, got %d", want, jobLogs.count())
}

func TestCorrelatedEventPersistsAndForwards(t *testing.T) {
	c, jobLogs, conn := newTestConsumer(t, "info")

	send(c, arbormodels.LogEvent{
		Timestamp:     time.Now(),
		Level:         log.InfoLevel,
		Message:       "Running OCR extraction",
		CorrelationID: "job_1",
		Fields:        map[string]interface{}{"stage": "ocr", "page_count": 3},
	})

	waitForPersisted(t, jobLogs, 1)
	entry := jobLogs.last()
	if entry.JobID != "job_1" {
		t.Errorf("job id = %q, want job_1", entry.JobID)
	}
	if entry.Level != "info" {
		t.Errorf("level = %q, want info", entry.Level)
	}
	if entry.Stage != "ocr" {
		t.Errorf("stage = %q, want ocr", entry.Stage)
	}
	if entry.Message != "Running OCR extraction page_count=3" {
		t.Errorf("message = %q", entry.Message)
	}

	ev := waitForEvent(t, conn)
	if ev.Type != models.StreamEventSystemMessage {
		t.Errorf("event type = %q, want system_message", ev.Type)
	}
	if ev.Data["job_id"] != "job_1" {
		t.Errorf("event job_id = %v, want job_1", ev.Data["job_id"])
	}
	if ev.Data["stage"] != "ocr" {
		t.Errorf("event stage = %v, want ocr", ev.Data["stage"])
	}
}

func TestBelowThresholdPersistsWithoutForwarding(t *testing.T) {
	c, jobLogs, conn := newTestConsumer(t, "warn")

	send(c, arbormodels.LogEvent{
		Timestamp:     time.Now(),
		Level:         log.InfoLevel,
		Message:       "Task scheduled",
		CorrelationID: "job_2",
	})

	waitForPersisted(t, jobLogs, 1)
	assertNoStreamEvent(t, conn)
}

func TestUncorrelatedEventForwardsWithoutPersisting(t *testing.T) {
	c, jobLogs, conn := newTestConsumer(t, "info")

	send(c, arbormodels.LogEvent{
		Timestamp: time.Now(),
		Level:     log.WarnLevel,
		Message:   "Queue depth above threshold",
	})

	ev := waitForEvent(t, conn)
	if ev.Data["level"] != "warn" {
		t.Errorf("level = %v, want warn", ev.Data["level"])
	}
	if _, ok := ev.Data["job_id"]; ok {
		t.Error("uncorrelated event should not carry a job_id")
	}
	if jobLogs.count() != 0 {
		t.Errorf("persisted %d entries, want 0", jobLogs.count())
	}
}

func TestTransportNoiseIsDropped(t *testing.T) {
	c, jobLogs, conn := newTestConsumer(t, "debug")

	send(c,
		arbormodels.LogEvent{Timestamp: time.Now(), Level: log.InfoLevel, Message: "HTTP request", CorrelationID: "job_3"},
		arbormodels.LogEvent{Timestamp: time.Now(), Level: log.InfoLevel, Message: "WebSocket client connected"},
		arbormodels.LogEvent{Timestamp: time.Now(), Level: log.InfoLevel, Message: "SSE stream opened"},
	)

	assertNoStreamEvent(t, conn)
	if jobLogs.count() != 0 {
		t.Errorf("persisted %d entries, want 0", jobLogs.count())
	}
}
