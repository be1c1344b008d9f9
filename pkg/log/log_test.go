package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
}

func TestLevelFiltering(t *testing.T) {
	rec := NewRecorder()
	l := NewLogger(WithLevel(WarnLevel), WithOutput(rec))

	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error")

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0].Message)
	assert.Equal(t, "error", entries[1].Message)
}

func TestWithFieldsDoesNotLeakToParent(t *testing.T) {
	l, rec := NewRecordingLogger()
	child := l.WithComponent("deploy").With(Str("runtime", "demo"))

	child.Info("child")
	l.Info("parent")

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "deploy", entries[0].Fields[ComponentKey])
	assert.Equal(t, "demo", entries[0].Fields[RuntimeKey])
	assert.NotContains(t, entries[1].Fields, ComponentKey)
}

func TestWithError(t *testing.T) {
	l, rec := NewRecordingLogger()
	l.WithError(errors.New("boom")).Error("failed")
	assert.Equal(t, "boom", rec.Entries()[0].Fields["error"])
	assert.Same(t, l, l.WithError(nil))
}

func TestTextFormatterSortsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(
		WithFormatter(&TextFormatter{DisableColors: true, DisableTimestamp: true}),
		WithOutput(NewConsoleOutput(WithWriter(&buf))),
	)
	l.Info("ready", Str("b", "2"), Str("a", "1"))
	assert.Equal(t, "INF ready a=1 b=2\n", buf.String())
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := FromConfig(Config{Level: "debug", Format: "json"}, &buf)
	l.Debug("polling", Int("attempt", 3), Str("session_token", "abc"))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "DEBUG", decoded["level"])
	assert.Equal(t, "polling", decoded["message"])
	assert.Equal(t, float64(3), decoded["attempt"])
	assert.Equal(t, "[REDACTED]", decoded["session_token"])
}
