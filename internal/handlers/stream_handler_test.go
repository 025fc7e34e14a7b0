package handlers

import (
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/scrutor/internal/models"
)

func TestWriteSSEEventFraming(t *testing.T) {
	event := models.NewStreamEvent(models.StreamEventJobUpdate, map[string]interface{}{
		"job_id": "job_1",
	})

	rec := httptest.NewRecorder()
	if err := writeSSEEvent(rec, event); err != nil {
		t.Fatalf("writeSSEEvent failed: %v", err)
	}

	frame := rec.Body.String()
	lines := strings.Split(strings.TrimRight(frame, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected event/data/id lines, got %q", frame)
	}
	if lines[0] != "event: job_update" {
		t.Errorf("unexpected event line: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "data: {") {
		t.Errorf("unexpected data line: %q", lines[1])
	}
	if !strings.HasSuffix(frame, "\n\n") {
		t.Error("frame must end with a blank line")
	}

	// The id line carries the event timestamp as unix milliseconds
	idValue := strings.TrimPrefix(lines[2], "id: ")
	if idValue == lines[2] {
		t.Fatalf("missing id line: %q", lines[2])
	}
	millis, err := strconv.ParseInt(idValue, 10, 64)
	if err != nil {
		t.Fatalf("id line is not numeric: %q", idValue)
	}
	ts, err := time.Parse(time.RFC3339, event.Timestamp)
	if err != nil {
		t.Fatalf("event timestamp not RFC3339: %v", err)
	}
	if got, want := millis, ts.UnixMilli(); got != want {
		t.Errorf("id %d does not match event timestamp %d", got, want)
	}
}

func TestWriteSSEEventBadTimestampFallsBack(t *testing.T) {
	event := models.StreamEvent{
		Type:      models.StreamEventPing,
		Data:      map[string]interface{}{},
		Timestamp: "not-a-timestamp",
	}

	rec := httptest.NewRecorder()
	before := time.Now().UnixMilli()
	if err := writeSSEEvent(rec, event); err != nil {
		t.Fatalf("writeSSEEvent failed: %v", err)
	}
	after := time.Now().UnixMilli()

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	idValue := strings.TrimPrefix(lines[len(lines)-1], "id: ")
	millis, err := strconv.ParseInt(idValue, 10, 64)
	if err != nil {
		t.Fatalf("id line is not numeric: %q", idValue)
	}
	if millis < before || millis > after {
		t.Errorf("fallback id %d outside write window [%d, %d]", millis, before, after)
	}
}
