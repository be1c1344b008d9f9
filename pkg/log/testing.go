package log

import (
	"strings"
	"sync"
)

// RecordedEntry is an entry captured by a Recorder.
type RecordedEntry struct {
	Level   Level
	Message string
	Fields  Fields
}

// Recorder is an Output that keeps entries in memory. Useful in tests.
type Recorder struct {
	mu      sync.Mutex
	entries []RecordedEntry
}

// NewRecorder creates a Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Write records the entry.
func (r *Recorder) Write(entry *Entry, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fields := make(Fields, len(entry.Fields))
	for k, v := range entry.Fields {
		fields[k] = v
	}
	r.entries = append(r.entries, RecordedEntry{Level: entry.Level, Message: entry.Message, Fields: fields})
	return nil
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []RecordedEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Contains reports whether any entry message contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, e := range r.Entries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// NewRecordingLogger returns a debug-level logger backed by a Recorder.
func NewRecordingLogger() (Logger, *Recorder) {
	rec := NewRecorder()
	return NewLogger(WithLevel(DebugLevel), WithOutput(rec)), rec
}
