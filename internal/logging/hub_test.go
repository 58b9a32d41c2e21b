package logging

import (
	"testing"
	"time"
)

func TestLogHubBroadcast(t *testing.T) {
	hub := NewLogHub()
	ch, cancel := hub.Subscribe(1, nil)
	defer cancel()

	entry := LogEntry{Message: "hello"}
	hub.Broadcast(entry)

	select {
	case got := <-ch:
		if got.Message != "hello" {
			t.Fatalf("expected message hello, got %q", got.Message)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for log entry")
	}
}

func TestLogHubClose(t *testing.T) {
	hub := NewLogHub()
	ch, cancel := hub.Subscribe(1, nil)
	cancel()
	hub.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel closed")
		}
	default:
	}
}

func TestLogHubCountsDroppedEntries(t *testing.T) {
	hub := NewLogHub()
	_, cancel := hub.Subscribe(1, nil)
	defer cancel()

	hub.Broadcast(LogEntry{Message: "kept"})
	hub.Broadcast(LogEntry{Message: "dropped"})

	if hub.Dropped() != 1 {
		t.Fatalf("expected 1 dropped entry, got %d", hub.Dropped())
	}
}

func TestLogHubUnsubscribeDuringBroadcast(t *testing.T) {
	hub := NewLogHub()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			hub.Broadcast(LogEntry{Message: "worker line"})
		}
	}()
	for i := 0; i < 100; i++ {
		_, cancel := hub.Subscribe(1, nil)
		cancel()
	}
	<-done
}

func TestLogHubDeliversOnlyMatchingSession(t *testing.T) {
	hub := NewLogHub()
	ch, cancel := hub.Subscribe(4, ForSessionID("abc"))
	defer cancel()

	hub.Broadcast(LogEntry{Message: "other", Context: map[string]string{FieldSession: "xyz"}})
	hub.Broadcast(LogEntry{Message: "panel"})
	hub.Broadcast(LogEntry{Message: "mine", Context: map[string]string{FieldSession: "abc"}})

	select {
	case got := <-ch:
		if got.Message != "mine" {
			t.Fatalf("expected only the matching entry, got %q", got.Message)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for log entry")
	}
	select {
	case extra := <-ch:
		t.Fatalf("expected no further entries, got %q", extra.Message)
	default:
	}
	if hub.Dropped() != 0 {
		t.Fatalf("expected filtered entries not to count as dropped, got %d", hub.Dropped())
	}
}
