package events

import (
	"testing"
	"time"
)

func TestHubPublishSubscribe(t *testing.T) {
	h := NewHub(8)

	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(TypeTaskSubmitted, map[string]string{"rid": "r1"})

	select {
	case ev := <-ch:
		if ev.Type != TypeTaskSubmitted {
			t.Fatalf("unexpected type %q", ev.Type)
		}
		if ev.ID != 1 {
			t.Fatalf("expected id 1, got %d", ev.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHubSnapshotSince(t *testing.T) {
	h := NewHub(4)

	for range 6 {
		h.Publish(TypeWorkerSpawned, nil)
	}

	// Ring capacity 4: only the last 4 events survive.
	all := h.SnapshotSince(0)
	if len(all) != 4 {
		t.Fatalf("expected 4 buffered events, got %d", len(all))
	}
	if all[0].ID != 3 || all[3].ID != 6 {
		t.Fatalf("unexpected window: first=%d last=%d", all[0].ID, all[3].ID)
	}

	tail := h.SnapshotSince(5)
	if len(tail) != 1 || tail[0].ID != 6 {
		t.Fatalf("unexpected tail: %#v", tail)
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(4)

	// Never drained; buffer fills, further publishes must not block.
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for range 300 {
			h.Publish(TypeTaskCompleted, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
