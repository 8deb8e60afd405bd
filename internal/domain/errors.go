package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that map errors to a transport
// status. Unclassified errors are treated as KindInternal.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindBadRequest
)

// Error carries a stable kind together with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets sentinel values match wrapped copies of themselves by kind and
// message.
func (e *Error) Is(target error) bool {
	var de *Error
	if !errors.As(target, &de) {
		return false
	}
	return e.Kind == de.Kind && e.Message == de.Message
}

// NotFoundf builds a KindNotFound error.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbiddenf builds a KindForbidden error.
func Forbiddenf(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a KindConflict error.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// BadRequestf builds a KindBadRequest error.
func BadRequestf(format string, args ...any) error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Internalf wraps an unexpected failure from a collaborator.
func Internalf(err error, format string, args ...any) error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

var (
	// ErrDuplicateAnswer signals the (session, question, team) uniqueness
	// constraint, from either the pre-check or the storage write.
	ErrDuplicateAnswer = &Error{Kind: KindConflict, Message: "you have already answered this question in this session"}
	// ErrDuplicateTeam signals the (session, name) uniqueness constraint.
	ErrDuplicateTeam = &Error{Kind: KindConflict, Message: "a team with this name has already joined this session"}
	// ErrInvalidCredentials is returned on a failed organizer login.
	ErrInvalidCredentials = &Error{Kind: KindForbidden, Message: "invalid credentials"}
)
