package log

import "strings"

// RedactionHook masks the values of sensitive fields.
type RedactionHook struct {
	keys map[string]struct{}
}

// NewRedactionHook creates a hook that redacts the named fields.
// Matching is case-insensitive.
func NewRedactionHook(keys ...string) *RedactionHook {
	h := &RedactionHook{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		h.keys[strings.ToLower(k)] = struct{}{}
	}
	return h
}

// DefaultRedactionHook redacts AWS credential fields.
func DefaultRedactionHook() *RedactionHook {
	return NewRedactionHook("secret_access_key", "session_token", "access_key_id", "password")
}

// Fire replaces sensitive values with a placeholder.
func (h *RedactionHook) Fire(entry *Entry) {
	for k := range entry.Fields {
		if _, ok := h.keys[strings.ToLower(k)]; ok {
			entry.Fields[k] = "[REDACTED]"
		}
	}
}
