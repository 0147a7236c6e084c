package service

import (
	"errors"
	"fmt"

	"toolshed/internal/schedule"
)

// Kind classifies a service error so callers can map it to a transport
// response without matching on message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindState
	KindConflict
	KindPolicy
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindConflict:
		return "conflict"
	case KindPolicy:
		return "policy"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the single error type every public operation returns on failure.
// Conflicts carry the overlapping intervals for user display.
type Error struct {
	Kind      Kind
	Message   string
	Conflicts []schedule.Conflict
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf extracts the Kind from err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// ConflictsOf returns the overlap details carried by a conflict error.
func ConflictsOf(err error) []schedule.Conflict {
	var se *Error
	if errors.As(err, &se) {
		return se.Conflicts
	}
	return nil
}

func validationErr(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func authorizationErr(format string, args ...interface{}) error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func stateErr(format string, args ...interface{}) error {
	return &Error{Kind: KindState, Message: fmt.Sprintf(format, args...)}
}

func policyErr(format string, args ...interface{}) error {
	return &Error{Kind: KindPolicy, Message: fmt.Sprintf(format, args...)}
}

func notFoundErr(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflictErr(conflicts []schedule.Conflict) error {
	return &Error{
		Kind:      KindConflict,
		Message:   fmt.Sprintf("requested interval overlaps %d existing booking(s)", len(conflicts)),
		Conflicts: conflicts,
	}
}
