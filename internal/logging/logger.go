package logging

import (
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const DefaultBufferSize = 1000

// Sources recorded under FieldSource.
const (
	SourceBackend = "backend"
	SourceWorker  = "worker"
)

// Logger writes key=value lines to an output, keeps the most recent entries in
// memory for /api/logs and fans them out to live subscribers.
type Logger struct {
	buffer      *LogBuffer
	output      *log.Logger
	minLevel    Level
	baseContext map[string]string
	hub         *LogHub
}

func NewLogger(buffer *LogBuffer, minLevel Level) *Logger {
	return NewLoggerWithOutput(buffer, minLevel, os.Stderr)
}

func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	var sink *log.Logger
	if output != nil {
		sink = log.New(output, "", log.LstdFlags)
	}
	return &Logger{
		buffer:   buffer,
		output:   sink,
		minLevel: normalizeLevel(minLevel),
		hub:      NewLogHub(),
	}
}

// Discard returns a logger that only records into a small private buffer.
func Discard() *Logger {
	return NewLoggerWithOutput(NewLogBuffer(64), LevelError, nil)
}

func (l *Logger) Buffer() *LogBuffer {
	if l == nil {
		return nil
	}
	return l.buffer
}

// Subscribe streams future entries accepted by match (all when nil).
func (l *Logger) Subscribe(match Match) (<-chan LogEntry, func()) {
	if l == nil || l.hub == nil {
		return nil, func() {}
	}
	return l.hub.Subscribe(0, match)
}

// With returns a child logger sharing buffer, output and subscribers.
func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return l
	}
	child := *l
	child.baseContext = cloneFields(l.baseContext, fields)
	return &child
}

// Component tags every entry with a category and the backend source.
func (l *Logger) Component(category string) *Logger {
	return l.With(map[string]string{
		FieldCategory: category,
		FieldSource:   SourceBackend,
	})
}

// ForSession tags entries with the session they concern.
func (l *Logger) ForSession(id, kind string) *Logger {
	return l.With(map[string]string{
		FieldSession: id,
		FieldKind:    kind,
	})
}

// Worker marks entries as relayed worker output rather than panel events.
func (l *Logger) Worker() *Logger {
	return l.With(map[string]string{FieldSource: SourceWorker})
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.log(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.log(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.log(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.log(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return LevelAtLeast(level, l.minLevel)
}

// Close ends every live subscription.
func (l *Logger) Close() {
	if l == nil || l.hub == nil {
		return
	}
	l.hub.Close()
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	if !l.Enabled(level) {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   cloneFields(l.baseContext, fields),
	}
	if l.buffer != nil {
		l.buffer.Add(entry)
	}
	l.hub.Broadcast(entry)
	if l.output != nil {
		l.output.Print(formatEntry(entry))
	}
}

func normalizeLevel(level Level) Level {
	if parsed, ok := ParseLevel(string(level)); ok {
		return parsed
	}
	return LevelInfo
}

func levelRank(level Level) int {
	switch level {
	case LevelDebug:
		return 0
	case LevelWarning:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

func ParseLevel(value string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warning", "warn":
		return LevelWarning, true
	case "error":
		return LevelError, true
	default:
		return "", false
	}
}

func LevelAtLeast(level, minLevel Level) bool {
	if minLevel == "" {
		return true
	}
	return levelRank(level) >= levelRank(minLevel)
}

func cloneFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	combined := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		combined[key] = value
	}
	for key, value := range extra {
		combined[key] = value
	}
	return combined
}

// formatEntry renders one text line. The category and session id lead so
// interleaved worker output stays readable; remaining fields follow sorted.
func formatEntry(entry LogEntry) string {
	var b strings.Builder
	b.WriteString("level=")
	b.WriteString(string(entry.Level))
	if category := entry.Context[FieldCategory]; category != "" {
		b.WriteString(" category=")
		b.WriteString(category)
	}
	if id := entry.Context[FieldSession]; id != "" {
		b.WriteString(" session=")
		b.WriteString(shortID(id))
	}
	b.WriteString(" msg=")
	b.WriteString(strconv.Quote(entry.Message))

	keys := make([]string, 0, len(entry.Context))
	for key := range entry.Context {
		switch key {
		case FieldCategory, FieldSession:
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(strconv.Quote(entry.Context[key]))
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
