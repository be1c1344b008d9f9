// Package utils holds small helpers shared across agentdeploy packages.
package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ToInt32NonNegative clamps n into the non-negative int32 range.
func ToInt32NonNegative(n int) int32 {
	if n < 0 {
		return 0
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(n)
}

// PickFirstNonEmpty picks the first non-empty value from a list of strings.
// If all values are empty, returns the empty string.
func PickFirstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// MapToPretty renders v as indented JSON, falling back to %v.
func MapToPretty(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}
