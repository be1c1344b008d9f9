package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a runtime version number. The control plane assigns 1 on
// create and increments by one on every update; a number is never reused.
// The zero value means "no version".
type Version uint64

// ParseVersion parses the decimal form the control plane uses. A leading
// "v" is accepted so artifact key segments round-trip.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return 0, NewValidationError("version is empty")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, NewValidationError("invalid version %q: must be a positive integer", s)
	}
	if n == 0 {
		return 0, NewValidationError("invalid version %q: versions start at 1", s)
	}
	return Version(n), nil
}

// MustParseVersion is ParseVersion for constants and tests.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the decimal form, or "" for the zero value.
func (v Version) String() string {
	if v == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(v), 10)
}

// Next returns the version an update is expected to produce.
func (v Version) Next() Version {
	return v + 1
}

// IsZero reports whether no version is set.
func (v Version) IsZero() bool {
	return v == 0
}

// MarshalText renders the version for JSON and YAML output.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses the version from JSON and YAML input.
func (v *Version) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*v = 0
		return nil
	}
	parsed, err := ParseVersion(string(b))
	if err != nil {
		return fmt.Errorf("decode version: %w", err)
	}
	*v = parsed
	return nil
}
