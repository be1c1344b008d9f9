package types

import "regexp"

// Runtime and endpoint names share the service's naming rule: a letter
// followed by up to 47 letters, digits or underscores.
var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)

// MaxNameLength is the longest runtime or endpoint name the service accepts.
const MaxNameLength = 48

// ValidateRuntimeName checks a runtime name.
func ValidateRuntimeName(name string) error {
	if !namePattern.MatchString(name) {
		return NewValidationError("invalid runtime name %q: must start with a letter and contain only letters, digits and underscores (max %d)", name, MaxNameLength)
	}
	return nil
}

// ValidateEndpointName checks an endpoint name.
func ValidateEndpointName(name string) error {
	if !namePattern.MatchString(name) {
		return NewValidationError("invalid endpoint name %q: must start with a letter and contain only letters, digits and underscores (max %d)", name, MaxNameLength)
	}
	return nil
}
