package watcher

import (
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestDebouncerCoalescesEvents(t *testing.T) {
	debouncer := newDebouncer(25 * time.Millisecond)
	defer debouncer.stop()

	received := make(chan string, 2)
	flush := func(path string) {
		received <- path
	}

	if debouncer.schedule("robots.json", Event{Path: "robots.json"}, flush) {
		t.Fatalf("expected first event not to be coalesced")
	}
	if !debouncer.schedule("robots.json", Event{Path: "robots.json"}, flush) {
		t.Fatalf("expected second event to be coalesced")
	}

	count := 0
	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case <-received:
			count++
		case <-deadline:
			if count != 1 {
				t.Fatalf("expected 1 flush, got %d", count)
			}
			return
		}
	}
}

func TestDebouncerPopReturnsLatestEvent(t *testing.T) {
	debouncer := newDebouncer(time.Hour)
	defer debouncer.stop()

	noop := func(string) {}
	debouncer.schedule("robots.json", Event{Path: "robots.json", Op: fsnotify.Create}, noop)
	debouncer.schedule("robots.json", Event{Path: "robots.json", Op: fsnotify.Write}, noop)

	event, ok := debouncer.pop("robots.json")
	if !ok || event.Op != fsnotify.Write {
		t.Fatalf("expected latest write event, got %+v (ok=%v)", event, ok)
	}
	if _, ok := debouncer.pop("robots.json"); ok {
		t.Fatalf("expected entry removed after pop")
	}
	if _, ok := debouncer.pop("models.yaml"); ok {
		t.Fatalf("expected no entry for unscheduled path")
	}
}
