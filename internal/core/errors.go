package core

import (
	"errors"
	"fmt"
)

// Domain sentinel errors, mapped to wire codes by Code.
var (
	ErrNotFound               = errors.New("session not found")
	ErrDuplicateActiveSession = errors.New("active session already exists for participants")
	ErrAlreadySet             = errors.New("payload already set")
	ErrInvalidState           = errors.New("operation not allowed in current state")
	ErrCapExceeded            = errors.New("candidate cap exceeded")

	// ErrEnded is the terminal-state flavour of ErrInvalidState.
	ErrEnded = fmt.Errorf("%w: session ended", ErrInvalidState)
)

// Wire codes.
const (
	CodeNotFound               = "NOT_FOUND"
	CodeDuplicateActiveSession = "DUPLICATE_ACTIVE_SESSION"
	CodeAlreadySet             = "ALREADY_SET"
	CodeInvalidState           = "INVALID_STATE"
	CodeCapExceeded            = "CAP_EXCEEDED"
)

// PayloadConflictError is returned when an offer or answer is written twice.
// Identical is true when the rejected payload equals the stored one, which
// lets a retrying client treat the rejection as success.
type PayloadConflictError struct {
	Kind      string
	Identical bool
}

func (e *PayloadConflictError) Error() string {
	if e.Identical {
		return e.Kind + " already set (identical payload)"
	}
	return e.Kind + " already set"
}

func (e *PayloadConflictError) Is(target error) bool { return target == ErrAlreadySet }

// DuplicateSessionError carries the id of the session that blocks creation.
type DuplicateSessionError struct {
	Existing string
}

func (e *DuplicateSessionError) Error() string {
	return ErrDuplicateActiveSession.Error() + ": " + e.Existing
}

func (e *DuplicateSessionError) Is(target error) bool { return target == ErrDuplicateActiveSession }

// Code maps err to its wire code, or "" when it is not a domain error.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrDuplicateActiveSession):
		return CodeDuplicateActiveSession
	case errors.Is(err, ErrAlreadySet):
		return CodeAlreadySet
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrCapExceeded):
		return CodeCapExceeded
	}
	return ""
}

// FromCode is the inverse of Code; unknown codes yield nil.
func FromCode(code string) error {
	switch code {
	case CodeNotFound:
		return ErrNotFound
	case CodeDuplicateActiveSession:
		return ErrDuplicateActiveSession
	case CodeAlreadySet:
		return ErrAlreadySet
	case CodeInvalidState:
		return ErrInvalidState
	case CodeCapExceeded:
		return ErrCapExceeded
	}
	return nil
}
