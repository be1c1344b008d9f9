package log

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
)

// JSONFormatter formats log entries as one JSON object per line.
type JSONFormatter struct {
	TimestampFormat string
}

// Format formats the entry as JSON.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	data := make(map[string]interface{}, len(entry.Fields)+3)
	for k, v := range entry.Fields {
		data[k] = v
	}

	tsFormat := time.RFC3339
	if f.TimestampFormat != "" {
		tsFormat = f.TimestampFormat
	}
	data["timestamp"] = entry.Timestamp.Format(tsFormat)
	data["level"] = entry.Level.String()
	data["message"] = entry.Message

	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// TextFormatter formats log entries as human-readable text.
type TextFormatter struct {
	TimestampFormat  string
	DisableColors    bool
	DisableTimestamp bool
}

// NewTextFormatter creates a TextFormatter with a short timestamp.
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{TimestampFormat: "15:04:05.000"}
}

var (
	dimColor   = color.New(color.FgHiBlack)
	keyColor   = color.New(color.FgCyan)
	levelColor = map[Level]*color.Color{
		DebugLevel: color.New(color.FgBlue),
		InfoLevel:  color.New(color.FgGreen),
		WarnLevel:  color.New(color.FgYellow),
		ErrorLevel: color.New(color.FgRed, color.Bold),
	}
	levelShort = map[Level]string{
		DebugLevel: "DBG",
		InfoLevel:  "INF",
		WarnLevel:  "WRN",
		ErrorLevel: "ERR",
	}
)

// Format formats the entry as a single text line. Fields are sorted by key.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var b strings.Builder

	if !f.DisableTimestamp {
		tsFormat := f.TimestampFormat
		if tsFormat == "" {
			tsFormat = "15:04:05.000"
		}
		ts := entry.Timestamp.Format(tsFormat)
		if !f.DisableColors {
			ts = dimColor.Sprint(ts)
		}
		b.WriteString(ts)
		b.WriteByte(' ')
	}

	level, ok := levelShort[entry.Level]
	if !ok {
		level = entry.Level.String()
	}
	if c, ok := levelColor[entry.Level]; ok && !f.DisableColors {
		level = c.Sprint(level)
	}
	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := k
		if !f.DisableColors {
			key = keyColor.Sprint(k)
		}
		fmt.Fprintf(&b, " %s=%v", key, entry.Fields[k])
	}
	b.WriteByte('\n')

	return []byte(b.String()), nil
}
