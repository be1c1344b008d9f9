package types

import (
	"fmt"
	"strings"
)

// RuntimeID is the opaque id the control plane assigns to a runtime.
type RuntimeID string

// String returns the id.
func (id RuntimeID) String() string { return string(id) }

// IdentifierKind tells how an Identifier refers to a runtime.
type IdentifierKind int

const (
	// IdentifierByID refers to a runtime by its control plane id.
	IdentifierByID IdentifierKind = iota + 1
	// IdentifierByName refers to a runtime by its unique name.
	IdentifierByName
)

// Identifier refers to a runtime either by id or by name. Names are
// resolved with an explicit lookup; the two forms are never guessed from
// the shape of the string.
type Identifier struct {
	kind  IdentifierKind
	value string
}

// ByID returns an Identifier for a runtime id.
func ByID(id RuntimeID) Identifier {
	return Identifier{kind: IdentifierByID, value: string(id)}
}

// ByName returns an Identifier for a runtime name.
func ByName(name string) Identifier {
	return Identifier{kind: IdentifierByName, value: name}
}

// ParseIdentifier parses CLI input. "name:<n>" and "id:<id>" select the
// form explicitly; bare input is an id unless byName is set.
func ParseIdentifier(s string, byName bool) (Identifier, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "name:"):
		s = strings.TrimPrefix(s, "name:")
		byName = true
	case strings.HasPrefix(s, "id:"):
		s = strings.TrimPrefix(s, "id:")
		byName = false
	}
	if s == "" {
		return Identifier{}, NewValidationError("runtime identifier is empty")
	}
	if byName {
		return ByName(s), nil
	}
	return ByID(RuntimeID(s)), nil
}

// Kind returns how the identifier refers to the runtime.
func (i Identifier) Kind() IdentifierKind { return i.kind }

// IsZero reports whether the identifier is unset.
func (i Identifier) IsZero() bool { return i.kind == 0 }

// ID returns the runtime id when the identifier is ByID.
func (i Identifier) ID() (RuntimeID, bool) {
	if i.kind != IdentifierByID {
		return "", false
	}
	return RuntimeID(i.value), true
}

// Name returns the runtime name when the identifier is ByName.
func (i Identifier) Name() (string, bool) {
	if i.kind != IdentifierByName {
		return "", false
	}
	return i.value, true
}

// String renders the identifier in the form ParseIdentifier accepts.
func (i Identifier) String() string {
	switch i.kind {
	case IdentifierByID:
		return "id:" + i.value
	case IdentifierByName:
		return "name:" + i.value
	default:
		return fmt.Sprintf("<invalid identifier %q>", i.value)
	}
}
