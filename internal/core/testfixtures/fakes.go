package testfixtures

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"mfl.dev/cli/internal/application/ports"
	"mfl.dev/cli/internal/core/plugin"
)

var fixedTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// FakeScriptLoader is an in-memory ScriptLoader that records every call
type FakeScriptLoader struct {
	mu        sync.Mutex
	scripts   map[plugin.ID]string
	AttachErr error
	Attached  []plugin.ID
	Detached  []plugin.ID
	Reloads   int
	OnReload  func()
}

// NewFakeScriptLoader creates an empty fake document
func NewFakeScriptLoader() *FakeScriptLoader {
	return &FakeScriptLoader{scripts: make(map[plugin.ID]string)}
}

// Attach adds a script unless one exists or rec is an archive
func (f *FakeScriptLoader) Attach(rec plugin.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Attached = append(f.Attached, rec.ID)
	if _, ok := f.scripts[rec.ID]; ok {
		return nil
	}
	if plugin.IsArchive(rec.FileURL) {
		return nil
	}
	if f.AttachErr != nil {
		return &plugin.InjectionError{PluginID: rec.ID, Err: f.AttachErr}
	}
	if strings.TrimSpace(rec.FileURL) == "" {
		return &plugin.InjectionError{PluginID: rec.ID, Err: fmt.Errorf("script %s has no src", plugin.ScriptElementID(rec.ID))}
	}
	f.scripts[rec.ID] = rec.FileURL
	return nil
}

// Detach removes the script and reloads when it was present
func (f *FakeScriptLoader) Detach(id plugin.ID) {
	f.mu.Lock()
	f.Detached = append(f.Detached, id)
	_, ok := f.scripts[id]
	delete(f.scripts, id)
	f.mu.Unlock()

	if ok {
		f.Reload()
	}
}

// Reload clears every script and runs OnReload
func (f *FakeScriptLoader) Reload() {
	f.mu.Lock()
	f.scripts = make(map[plugin.ID]string)
	f.Reloads++
	hook := f.OnReload
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// HasScript reports whether the script for id is present
func (f *FakeScriptLoader) HasScript(id plugin.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.scripts[id]
	return ok
}

// ScriptIDs returns the element ids currently present, sorted
func (f *FakeScriptLoader) ScriptIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.scripts))
	for id := range f.scripts {
		out = append(out, plugin.ScriptElementID(id))
	}
	sort.Strings(out)
	return out
}

// FakeConfirmer answers every prompt with Answer and records the prompts
type FakeConfirmer struct {
	Answer  bool
	Prompts []string
}

func (c *FakeConfirmer) Confirm(ctx context.Context, prompt string) bool {
	c.Prompts = append(c.Prompts, prompt)
	return c.Answer
}

// LogEntry is one captured log line
type LogEntry struct {
	Level   ports.LogLevel
	Message string
	Err     error
	Fields  map[string]interface{}
}

// RecordingLogger captures log calls for assertions
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *RecordingLogger) Log(level ports.LogLevel, message string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: message, Fields: fields})
}

func (l *RecordingLogger) LogError(err error, message string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: ports.LogLevelError, Message: message, Err: err, Fields: fields})
}

func (l *RecordingLogger) SetLogLevel(level ports.LogLevel) {}
func (l *RecordingLogger) GetLogLevel() ports.LogLevel      { return ports.LogLevelDebug }

// Entries returns a snapshot of the captured lines
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// HasMessage reports whether any line has the given message
func (l *RecordingLogger) HasMessage(message string) bool {
	for _, e := range l.Entries() {
		if e.Message == message {
			return true
		}
	}
	return false
}

// Errors returns the errors logged so far
func (l *RecordingLogger) Errors() []error {
	var out []error
	for _, e := range l.Entries() {
		if e.Err != nil {
			out = append(out, e.Err)
		}
	}
	return out
}

// FailingStore wraps a KeyValueStore and fails writes while FailWrites is set
type FailingStore struct {
	ports.KeyValueStore
	mu         sync.Mutex
	FailWrites bool
	Writes     int
}

var ErrStoreUnavailable = errors.New("store unavailable")

func (s *FailingStore) SetItem(ctx context.Context, key, value string) error {
	s.mu.Lock()
	fail := s.FailWrites
	s.Writes++
	s.mu.Unlock()
	if fail {
		return fmt.Errorf("write %s: %w", key, ErrStoreUnavailable)
	}
	return s.KeyValueStore.SetItem(ctx, key, value)
}

// SetFailWrites toggles write failures
func (s *FailingStore) SetFailWrites(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailWrites = fail
}

// WriteCount returns how many writes were attempted
func (s *FailingStore) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Writes
}
