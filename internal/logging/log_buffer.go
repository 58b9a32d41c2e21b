package logging

import (
	"sync"
	"time"

	"robopanel/internal/buffer"
)

type LogBuffer struct {
	mu      sync.Mutex
	entries *buffer.Ring[LogEntry]
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{
		entries: buffer.NewRing[LogEntry](size),
	}
}

func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.entries == nil {
		return
	}

	b.entries.Add(entry)
}

func (b *LogBuffer) List() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.entries.List()
}

type Query struct {
	Limit    int
	MinLevel Level
	Since    time.Time
}

// Query returns the newest matching entries, oldest first, capped at Limit.
func (b *LogBuffer) Query(query Query) []LogEntry {
	entries := b.List()
	filtered := make([]LogEntry, 0, len(entries))
	for _, entry := range entries {
		if !LevelAtLeast(entry.Level, query.MinLevel) {
			continue
		}
		if !query.Since.IsZero() && entry.Timestamp.Before(query.Since) {
			continue
		}
		filtered = append(filtered, entry)
	}
	if query.Limit > 0 && len(filtered) > query.Limit {
		filtered = filtered[len(filtered)-query.Limit:]
	}
	return filtered
}
