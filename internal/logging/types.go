package logging

import "time"

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Field keys shared by every component so panel logs can be filtered uniformly.
const (
	FieldCategory = "panel.category"
	FieldSource   = "panel.source"
	FieldSession  = "session_id"
	FieldKind     = "session_kind"
	FieldRobot    = "robot_id"
)

type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}
