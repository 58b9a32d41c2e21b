package logging

import (
	"sync"
	"sync/atomic"
)

const defaultSubscriberBuffer = 100

// Match selects the entries a subscriber receives. A nil Match accepts all.
type Match func(LogEntry) bool

// ForSessionID matches entries logged for one supervised session, including
// the worker output mirrored at debug level.
func ForSessionID(id string) Match {
	return func(entry LogEntry) bool {
		return entry.Context[FieldSession] == id
	}
}

type subscriber struct {
	ch    chan LogEntry
	match Match
}

// LogHub fans entries out to subscribers. Slow subscribers lose entries
// instead of blocking the logger, and the worker pumps that log through it;
// the loss is counted in Dropped.
type LogHub struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]subscriber
	closed  bool
	dropped atomic.Int64
}

func NewLogHub() *LogHub {
	return &LogHub{subs: make(map[uint64]subscriber)}
}

func (h *LogHub) Subscribe(buffer int, match Match) (<-chan LogEntry, func()) {
	if h == nil {
		return nil, func() {}
	}
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		ch := make(chan LogEntry)
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	id := h.nextID
	ch := make(chan LogEntry, buffer)
	h.subs[id] = subscriber{ch: ch, match: match}
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(existing.ch)
		}
	}
}

// Broadcast delivers entry to every matching subscriber without blocking.
// Holding mu keeps unsubscribe from closing a channel mid-send.
func (h *LogHub) Broadcast(entry LogEntry) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if sub.match != nil && !sub.match(entry) {
			continue
		}
		select {
		case sub.ch <- entry:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *LogHub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *LogHub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}
