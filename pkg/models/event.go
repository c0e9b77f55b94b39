// Package models contains shared data models used across the Faultline codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Event severity levels, ordered from most to least severe.
const (
	LevelFatal   = "fatal"
	LevelError   = "error"
	LevelWarning = "warning"
	LevelInfo    = "info"
	LevelDebug   = "debug"
)

// LevelSeverity maps a level string to a numeric severity for comparisons.
// Unknown levels rank below debug.
func LevelSeverity(level string) int {
	switch level {
	case LevelFatal:
		return 5
	case LevelError:
		return 4
	case LevelWarning:
		return 3
	case LevelInfo:
		return 2
	case LevelDebug:
		return 1
	default:
		return 0
	}
}

// StackFrame is one frame of a captured stack trace, innermost first.
type StackFrame struct {
	File     string `json:"file"`
	Function string `json:"function,omitempty"`
	Line     int    `json:"line"`
	InApp    bool   `json:"in_app"`
}

// RawEvent is an error event as received from a client SDK.
// Immutable once stored.
type RawEvent struct {
	ID               uuid.UUID    `db:"id"                json:"id"`
	ProjectID        uuid.UUID    `db:"project_id"        json:"project_id"`
	Timestamp        time.Time    `db:"timestamp"         json:"timestamp"`
	Level            string       `db:"level"             json:"level"`
	Platform         string       `db:"platform"          json:"platform"`
	ExceptionType    string       `db:"exception_type"    json:"exception_type,omitempty"`
	ExceptionMessage string       `db:"exception_message" json:"exception_message,omitempty"`
	Message          string       `db:"message"           json:"message,omitempty"`
	StackFrames      []StackFrame `db:"stack_frames"      json:"stack_frames,omitempty"`
	Fingerprint      []string     `db:"fingerprint"       json:"fingerprint,omitempty"`
	// FingerprintHash is set by the ingestion pipeline before persistence;
	// an issue merge can later repoint it at the surviving issue's hash.
	FingerprintHash string    `db:"fingerprint_hash" json:"fingerprint_hash,omitempty"`
	Environment     string    `db:"environment"      json:"environment,omitempty"`
	Release         string    `db:"release"          json:"release,omitempty"`
	UserID          string    `db:"user_id"          json:"user_id,omitempty"`
	ReceivedAt      time.Time `db:"received_at"      json:"received_at"`
}

// LogEntry is a structured log row ingested alongside error events.
type LogEntry struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	ProjectID uuid.UUID `db:"project_id" json:"project_id"`
	Timestamp time.Time `db:"timestamp"  json:"timestamp"`
	Level     string    `db:"level"      json:"level"`
	Message   string    `db:"message"    json:"message"`
	Service   string    `db:"service"    json:"service,omitempty"`
}

// Span is a trace span row; DurationMs and StatusCode feed the minute rollups.
type Span struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	ProjectID  uuid.UUID `db:"project_id"  json:"project_id"`
	Timestamp  time.Time `db:"timestamp"   json:"timestamp"`
	Name       string    `db:"name"        json:"name"`
	DurationMs float64   `db:"duration_ms" json:"duration_ms"`
	StatusCode int       `db:"status_code" json:"status_code,omitempty"`
}
