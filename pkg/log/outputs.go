package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleOutput writes entries to a writer, stderr by default.
type ConsoleOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// ConsoleOption configures a ConsoleOutput.
type ConsoleOption func(*ConsoleOutput)

// WithWriter sets the destination writer.
func WithWriter(w io.Writer) ConsoleOption {
	return func(o *ConsoleOutput) { o.w = w }
}

// NewConsoleOutput creates a console output.
func NewConsoleOutput(opts ...ConsoleOption) *ConsoleOutput {
	o := &ConsoleOutput{w: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Write writes the formatted entry.
func (o *ConsoleOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.w.Write(formatted)
	return err
}

// NullOutput discards everything.
type NullOutput struct{}

// NewNullOutput creates a NullOutput.
func NewNullOutput() *NullOutput { return &NullOutput{} }

// Write discards the entry.
func (o *NullOutput) Write(*Entry, []byte) error { return nil }

// NewNopLogger returns a logger that discards all output.
func NewNopLogger() Logger {
	return NewLogger(WithOutput(NewNullOutput()))
}
