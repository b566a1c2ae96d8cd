// Package observability provides the structured logger and in-memory
// metrics consumed by the history service and deduplication engine.
package observability

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"strings"
)

// LogLevel defines the logging verbosity level.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelError
)

// LogFormat defines the output format for logs.
type LogFormat int

const (
	LogFormatHuman LogFormat = iota
	LogFormatJSON
)

// DefaultLogger writes structured logs to the standard logger in either
// human-readable or JSON format. It satisfies the Logger interfaces of the
// history and dedup usecases.
type DefaultLogger struct {
	level  LogLevel
	format LogFormat
}

// NewDefaultLogger creates a logger with the specified config.
func NewDefaultLogger(level LogLevel, format LogFormat) *DefaultLogger {
	return &DefaultLogger{level: level, format: format}
}

// ParseLevel maps a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LogLevelDebug
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// ParseFormat maps a config string to a LogFormat, defaulting to human.
func ParseFormat(s string) LogFormat {
	if s == "json" {
		return LogFormatJSON
	}
	return LogFormatHuman
}

// LogInfo logs an informational message with structured fields.
func (l *DefaultLogger) LogInfo(ctx context.Context, message string, fields map[string]interface{}) {
	if l.level > LogLevelInfo {
		return
	}
	l.write("info", message, fields)
}

// LogWarning logs a warning message with structured fields.
func (l *DefaultLogger) LogWarning(ctx context.Context, message string, fields map[string]interface{}) {
	if l.level > LogLevelInfo {
		return
	}
	l.write("warning", message, fields)
}

// LogError logs an error message with structured fields.
func (l *DefaultLogger) LogError(ctx context.Context, message string, fields map[string]interface{}) {
	l.write("error", message, fields)
}

func (l *DefaultLogger) write(level, message string, fields map[string]interface{}) {
	if l.format == LogFormatJSON {
		entry := make(map[string]interface{}, len(fields)+2)
		for k, v := range fields {
			entry[k] = v
		}
		entry["level"] = level
		entry["message"] = message
		if data, err := json.Marshal(entry); err == nil {
			log.Println(string(data))
			return
		}
	}

	// Human-readable format with deterministic field order
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("[" + strings.ToUpper(level) + "] " + message)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(formatValue(fields[k]))
	}
	log.Println(b.String())
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "?"
		}
		return string(data)
	}
}
