// SPDX-License-Identifier: MIT

package domain

import "fmt"

// ErrNotFound indicates that a room, recording or chunk does not exist.
type ErrNotFound struct {
	Kind string // "room", "recording", "chunk"
	ID   string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ErrInvalidTransition indicates a state-machine violation.
type ErrInvalidTransition struct {
	Entity string
	From   string
	To     string
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s -> %s", e.Entity, e.From, e.To)
}

// ErrInvalidOperation indicates an operation that is not permitted in the
// entity's current state, e.g. a metadata update on a synced recording.
type ErrInvalidOperation struct {
	Reason string
}

func (e ErrInvalidOperation) Error() string {
	return e.Reason
}

// ErrInvalidArgument indicates a malformed or out-of-range input value.
type ErrInvalidArgument struct {
	Field  string
	Reason string
}

func (e ErrInvalidArgument) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrAccessDenied indicates a missing or mismatched room access key.
type ErrAccessDenied struct{}

func (e ErrAccessDenied) Error() string {
	return "access denied"
}

// ErrStorageUnavailable wraps a backend I/O failure on the chunk store.
type ErrStorageUnavailable struct {
	Op    string
	Cause error
}

func (e ErrStorageUnavailable) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Cause)
}

func (e ErrStorageUnavailable) Unwrap() error {
	return e.Cause
}
