package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/interfaces"
)

// TestRecentReturnsNewestFirst verifies the recent ring ordering and limit
func TestRecentReturnsNewestFirst(t *testing.T) {
	eventService := NewService(arbor.NewLogger())
	defer eventService.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := eventService.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventJobProgress,
			Payload: map[string]interface{}{"seq": i},
		})
		if err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	recent := eventService.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3 events, got %d", len(recent))
	}
	for i, ev := range recent {
		payload := ev.Payload.(map[string]interface{})
		if payload["seq"] != 4-i {
			t.Errorf("event %d: expected seq %d, got %v", i, 4-i, payload["seq"])
		}
		if ev.Timestamp.IsZero() {
			t.Errorf("event %d has no timestamp", i)
		}
	}

	// A limit beyond the recorded count returns everything
	if got := eventService.Recent(100); len(got) != 5 {
		t.Errorf("expected all 5 events, got %d", len(got))
	}
}

// TestRecentRingEvictsOldest verifies the ring stays bounded
func TestRecentRingEvictsOldest(t *testing.T) {
	eventService := NewService(arbor.NewLogger())
	defer eventService.Close()

	ctx := context.Background()
	for i := 0; i < recentCapacity+10; i++ {
		eventService.PublishSync(ctx, interfaces.Event{
			Type:    interfaces.EventJobStats,
			Payload: fmt.Sprintf("event-%d", i),
		})
	}

	recent := eventService.Recent(0)
	if len(recent) != recentCapacity {
		t.Fatalf("expected ring capped at %d, got %d", recentCapacity, len(recent))
	}
	if recent[0].Payload != fmt.Sprintf("event-%d", recentCapacity+9) {
		t.Errorf("newest event wrong: %v", recent[0].Payload)
	}
	if recent[len(recent)-1].Payload != "event-10" {
		t.Errorf("oldest surviving event wrong: %v", recent[len(recent)-1].Payload)
	}
}

// TestRecentEmpty verifies Recent on a fresh service
func TestRecentEmpty(t *testing.T) {
	eventService := NewService(arbor.NewLogger())
	defer eventService.Close()

	if got := eventService.Recent(10); len(got) != 0 {
		t.Errorf("expected no events, got %d", len(got))
	}
}
