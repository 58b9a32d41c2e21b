package buffer

// Ring is a fixed-capacity FIFO. Once full, each Add overwrites the oldest
// entry. Ring is not safe for concurrent use; callers wrap it with a lock.
type Ring[T any] struct {
	entries []T
	start   int
	count   int
}

func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{
		entries: make([]T, size),
	}
}

// Add appends entry and reports whether an older entry was evicted.
func (r *Ring[T]) Add(entry T) bool {
	if r == nil || len(r.entries) == 0 {
		return false
	}

	if r.count < len(r.entries) {
		index := (r.start + r.count) % len(r.entries)
		r.entries[index] = entry
		r.count++
		return false
	}

	r.entries[r.start] = entry
	r.start = (r.start + 1) % len(r.entries)
	return true
}

func (r *Ring[T]) Len() int {
	if r == nil {
		return 0
	}
	return r.count
}

func (r *Ring[T]) Cap() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Last returns the most recently added entry.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r == nil || r.count == 0 {
		return zero, false
	}
	index := (r.start + r.count - 1) % len(r.entries)
	return r.entries[index], true
}

// List returns the entries oldest first.
func (r *Ring[T]) List() []T {
	if r == nil || r.count == 0 {
		return nil
	}

	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		index := (r.start + i) % len(r.entries)
		out[i] = r.entries[index]
	}
	return out
}
