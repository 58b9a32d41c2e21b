package watcher

import (
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"robopanel/internal/logging"
)

const defaultDebounce = 100 * time.Millisecond

var ErrClosed = errors.New("watcher closed")

// Event is a debounced change to a watched file.
type Event struct {
	Path      string
	Op        fsnotify.Op
	Timestamp time.Time
}

type Options struct {
	Logger   *logging.Logger
	Debounce time.Duration
}

type Metrics struct {
	Files           int
	EventsDelivered uint64
	EventsCoalesced uint64
	Errors          uint64
}

// Watcher is an fsnotify-backed file watcher. Callbacks run on timer
// goroutines and must not block for long.
type Watcher struct {
	source    *fsnotify.Watcher
	mutex     sync.Mutex
	callbacks map[string][]func(Event)
	dirs      map[string]int
	debouncer *debouncer
	done      chan struct{}
	closed    bool
	logger    *logging.Logger

	eventsDelivered uint64
	eventsCoalesced uint64
	errorCount      uint64
}

func New(options Options) (*Watcher, error) {
	source, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	debounce := options.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	instance := &Watcher{
		source:    source,
		callbacks: make(map[string][]func(Event)),
		dirs:      make(map[string]int),
		debouncer: newDebouncer(debounce),
		done:      make(chan struct{}),
		logger:    logger.Component("watcher"),
	}
	go instance.run()
	return instance, nil
}

// WatchFile calls callback after path is created, written, renamed over or
// removed. The file does not need to exist yet; its directory does.
func (w *Watcher) WatchFile(path string, callback func(Event)) error {
	if w == nil {
		return ErrClosed
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(absolute)

	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.dirs[dir] == 0 {
		if err := w.source.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.callbacks[absolute] = append(w.callbacks[absolute], callback)
	w.logger.Debug("watching file", map[string]string{
		"path":  absolute,
		"files": strconv.Itoa(len(w.callbacks)),
	})
	return nil
}

func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return nil
	}
	w.closed = true
	w.debouncer.stop()
	w.debouncer = nil
	w.mutex.Unlock()

	close(w.done)
	return w.source.Close()
}

func (w *Watcher) Metrics() Metrics {
	if w == nil {
		return Metrics{}
	}
	w.mutex.Lock()
	files := len(w.callbacks)
	w.mutex.Unlock()
	return Metrics{
		Files:           files,
		EventsDelivered: atomic.LoadUint64(&w.eventsDelivered),
		EventsCoalesced: atomic.LoadUint64(&w.eventsCoalesced),
		Errors:          atomic.LoadUint64(&w.errorCount),
	}
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.source.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.source.Errors:
			if !ok {
				return
			}
			atomic.AddUint64(&w.errorCount, 1)
			w.logger.Warn("file watch error", map[string]string{"error": err.Error()})
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	path := filepath.Clean(event.Name)

	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed || len(w.callbacks[path]) == 0 {
		return
	}
	entry := Event{Path: path, Op: event.Op, Timestamp: time.Now().UTC()}
	if w.debouncer.schedule(path, entry, w.flush) {
		atomic.AddUint64(&w.eventsCoalesced, 1)
	}
}

func (w *Watcher) flush(path string) {
	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return
	}
	event, ok := w.debouncer.pop(path)
	if !ok {
		w.mutex.Unlock()
		return
	}
	callbacks := append([]func(Event){}, w.callbacks[path]...)
	w.mutex.Unlock()

	for _, callback := range callbacks {
		callback(event)
		atomic.AddUint64(&w.eventsDelivered, 1)
	}
}
