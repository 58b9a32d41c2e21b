package process

import (
	"context"
	"errors"
	"sync"

	"github.com/sourcegraph/conc"
)

var ErrProcessNotFound = errors.New("process not running")

type Entry struct {
	PID  int
	PGID int
	Name string
	Done <-chan struct{}
}

// Registry tracks every live worker so the host can stop all of them on
// shutdown, even sessions nobody holds a reference to anymore.
type Registry struct {
	mu      sync.Mutex
	entries map[int]Entry
	options Options
}

func NewRegistry(options Options) *Registry {
	return &Registry{
		entries: make(map[int]Entry),
		options: options,
	}
}

func (r *Registry) Register(entry Entry) {
	if r == nil || entry.PID <= 0 {
		return
	}
	r.mu.Lock()
	r.entries[entry.PID] = entry
	r.mu.Unlock()
}

func (r *Registry) Unregister(pid int) {
	if r == nil || pid <= 0 {
		return
	}
	r.mu.Lock()
	delete(r.entries, pid)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// StopAll escalates every registered worker concurrently.
func (r *Registry) StopAll(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	entries := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	r.mu.Unlock()

	var (
		errMu   sync.Mutex
		stopErr error
		group   conc.WaitGroup
	)
	for _, entry := range entries {
		entry := entry
		group.Go(func() {
			if entry.Done == nil && !isAlive(entry.PID) {
				return
			}
			outcome := Escalate(ctx, Target{PID: entry.PID, PGID: entry.PGID, Done: entry.Done}, r.options)
			if outcome.Err != nil && !errors.Is(outcome.Err, ErrProcessNotFound) {
				errMu.Lock()
				stopErr = errors.Join(stopErr, outcome.Err)
				errMu.Unlock()
			}
		})
	}
	group.Wait()

	if len(entries) > 0 {
		r.mu.Lock()
		for _, entry := range entries {
			delete(r.entries, entry.PID)
		}
		r.mu.Unlock()
	}
	return stopErr
}
