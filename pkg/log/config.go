package log

import (
	"io"
	"os"
	"strings"
)

// Config describes how the CLI logger is built.
type Config struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Format  string `mapstructure:"format" yaml:"format"`
	NoColor bool   `mapstructure:"no_color" yaml:"no_color"`
}

// DefaultConfig returns info-level text logging.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

// FromConfig builds a logger writing to w.
func FromConfig(cfg Config, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}

	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "json":
		formatter = &JSONFormatter{}
	default:
		tf := NewTextFormatter()
		tf.DisableColors = cfg.NoColor
		formatter = tf
	}

	return NewLogger(
		WithLevel(ParseLevel(cfg.Level)),
		WithFormatter(formatter),
		WithOutput(NewConsoleOutput(WithWriter(w))),
		WithHook(DefaultRedactionHook()),
	)
}
