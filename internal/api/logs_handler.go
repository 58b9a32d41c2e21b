package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"robopanel/internal/logging"
)

// LogsHandler streams panel log entries over a websocket. Clients may change
// the minimum level at any time by sending {"level": "..."}, and may follow a
// single session with ?session=<id>, which includes that worker's output.
type LogsHandler struct {
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

type logFilterMessage struct {
	Level string `json:"level"`
}

type levelFilter struct {
	mu    sync.RWMutex
	level logging.Level
}

func (f *levelFilter) Get() logging.Level {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.level
}

func (f *levelFilter) Set(level logging.Level) {
	f.mu.Lock()
	f.level = level
	f.mu.Unlock()
}

func (f *levelFilter) allows(entry logging.LogEntry) bool {
	minLevel := f.Get()
	return minLevel == "" || logging.LevelAtLeast(entry.Level, minLevel)
}

func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}

	filter := &levelFilter{}
	if rawLevel := r.URL.Query().Get("level"); rawLevel != "" {
		if level, ok := logging.ParseLevel(rawLevel); ok {
			filter.Set(level)
		}
	}

	if h.Logger == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "log stream unavailable",
		})
		return
	}
	var match logging.Match
	if sessionID := r.URL.Query().Get("session"); sessionID != "" {
		match = logging.ForSessionID(sessionID)
	}
	output, cancel := h.Logger.Subscribe(match)
	if output == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "log stream unavailable",
		})
		return
	}
	defer cancel()

	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}
	defer conn.Close()

	spanCtx, span := startWebSocketSpan(r, "/ws/logs")
	defer span.End()

	var snapshot []logging.LogEntry
	if buffer := h.Logger.Buffer(); buffer != nil {
		snapshot = buffer.List()
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			var payload logFilterMessage
			if err := json.Unmarshal(msg, &payload); err != nil {
				continue
			}
			level, ok := logging.ParseLevel(payload.Level)
			if !ok {
				filter.Set("")
				continue
			}
			filter.Set(level)
		}
	}()

	write := func(entry logging.LogEntry) error {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		return conn.WriteJSON(entry)
	}

	for _, entry := range snapshot {
		if !filter.allows(entry) || (match != nil && !match(entry)) {
			continue
		}
		if err := write(entry); err != nil {
			return
		}
	}

	for {
		select {
		case <-spanCtx.Done():
			return
		case <-readDone:
			return
		case entry, ok := <-output:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "log stream closed"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if !filter.allows(entry) {
				continue
			}
			if err := write(entry); err != nil {
				return
			}
		}
	}
}
