package session

import (
	"sync"

	"robopanel/internal/buffer"
)

// LineBuffer is a bounded, FIFO-evicting log of worker output lines.
type LineBuffer struct {
	mu      sync.Mutex
	lines   *buffer.Ring[string]
	evicted int64
}

func NewLineBuffer(capacity int) *LineBuffer {
	return &LineBuffer{lines: buffer.NewRing[string](capacity)}
}

func (b *LineBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lines.Add(line) {
		b.evicted++
	}
}

// Lines returns a copy, oldest first.
func (b *LineBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := b.lines.List()
	if lines == nil {
		return []string{}
	}
	return lines
}

func (b *LineBuffer) Last() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lines.Last()
}

func (b *LineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lines.Len()
}

func (b *LineBuffer) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lines.Cap()
}

// Evicted is the number of lines dropped to respect the capacity.
func (b *LineBuffer) Evicted() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}
