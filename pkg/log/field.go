package log

import (
	"fmt"
	"time"
)

// Field is a single key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// Str creates a string field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 creates an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Bool creates a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Duration creates a duration field rendered as a string.
func Duration(key string, d time.Duration) Field {
	return Field{Key: key, Value: d.String()}
}

// Err creates an "error" field.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Runtime creates a runtime name field.
func Runtime(name string) Field { return Field{Key: RuntimeKey, Value: name} }

// Endpoint creates an endpoint name field.
func Endpoint(name string) Field { return Field{Key: EndpointKey, Value: name} }

// Version creates a runtime version field. Any fmt.Stringer is rendered.
func Version(v fmt.Stringer) Field { return Field{Key: VersionKey, Value: v.String()} }

// Stage creates a pipeline stage field.
func Stage(s fmt.Stringer) Field { return Field{Key: StageKey, Value: s.String()} }
