// Package utils holds small parsing helpers for command flags.
package utils

import (
	"fmt"
	"sort"
	"strings"
)

// ParseKeyValues parses KEY=VALUE pairs given either as separate entries
// or comma separated within one entry.
// Example: ["A=1,B=2", "C=3"] -> {"A": "1", "B": "2", "C": "3"}
// Values may be empty; keys may not.
func ParseKeyValues(entries []string) (map[string]string, error) {
	result := make(map[string]string)
	for _, entry := range entries {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		for _, pair := range strings.Split(entry, ",") {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("invalid format, expected KEY=VALUE: %s", pair)
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return nil, fmt.Errorf("empty key in: %s", pair)
			}
			result[key] = strings.TrimSpace(value)
		}
	}
	return result, nil
}

// MergeKeyValues overlays override onto base without changing either.
func MergeKeyValues(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// SortedKeys returns the keys of m in order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
