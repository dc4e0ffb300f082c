package logging

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"

	"mfl.dev/cli/internal/application/ports"
)

// StandardLogger adapts the standard logger to the LoggingGateway interface
type StandardLogger struct {
	logger   *log.Logger
	mu       sync.RWMutex
	logLevel ports.LogLevel
}

// NewStandardLogger creates a logger writing to out with the mfl prefix
func NewStandardLogger(out io.Writer, level ports.LogLevel) *StandardLogger {
	return &StandardLogger{
		logger:   log.New(out, "[mfl] ", log.LstdFlags),
		logLevel: level,
	}
}

// Logger exposes the underlying standard logger
func (l *StandardLogger) Logger() *log.Logger {
	return l.logger
}

// Log writes message when level is at or above the configured level
func (l *StandardLogger) Log(level ports.LogLevel, message string, fields map[string]interface{}) {
	if !l.shouldLog(level) {
		return
	}
	l.logger.Printf("%s: %s%s", strings.ToUpper(string(level)), message, formatFields(fields))
}

// LogError logs err at error level
func (l *StandardLogger) LogError(err error, message string, fields map[string]interface{}) {
	if !l.shouldLog(ports.LogLevelError) {
		return
	}
	l.logger.Printf("ERROR: %s: %v%s", message, err, formatFields(fields))
}

// SetLogLevel sets the logging level
func (l *StandardLogger) SetLogLevel(level ports.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logLevel = level
}

// GetLogLevel returns the current logging level
func (l *StandardLogger) GetLogLevel() ports.LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.logLevel
}

func (l *StandardLogger) shouldLog(level ports.LogLevel) bool {
	return level.Rank() >= l.GetLogLevel().Rank()
}

// formatFields renders fields in key order so log lines are stable
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " (" + strings.Join(parts, " ") + ")"
}

// NoopLogger discards everything
type NoopLogger struct{}

func (NoopLogger) Log(level ports.LogLevel, message string, fields map[string]interface{}) {}
func (NoopLogger) LogError(err error, message string, fields map[string]interface{})       {}
func (NoopLogger) SetLogLevel(level ports.LogLevel)                                        {}
func (NoopLogger) GetLogLevel() ports.LogLevel                                             { return ports.LogLevelError }
