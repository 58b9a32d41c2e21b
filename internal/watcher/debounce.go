package watcher

import "time"

type pending struct {
	timer *time.Timer
	event Event
}

type debouncer struct {
	duration time.Duration
	entries  map[string]pending
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{
		duration: duration,
		entries:  make(map[string]pending),
	}
}

// schedule records event for path and (re)arms its timer. It reports whether
// an earlier event for the same path was coalesced.
func (d *debouncer) schedule(path string, event Event, flush func(string)) bool {
	if d == nil {
		return false
	}
	entry := d.entries[path]
	coalesced := entry.timer != nil
	entry.event = event
	if entry.timer == nil {
		entry.timer = time.AfterFunc(d.duration, func() {
			flush(path)
		})
	} else {
		entry.timer.Reset(d.duration)
	}
	d.entries[path] = entry
	return coalesced
}

func (d *debouncer) pop(path string) (Event, bool) {
	if d == nil {
		return Event{}, false
	}
	entry, ok := d.entries[path]
	if !ok {
		return Event{}, false
	}
	delete(d.entries, path)
	return entry.event, true
}

func (d *debouncer) stop() {
	if d == nil {
		return
	}
	for _, entry := range d.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	d.entries = nil
}
