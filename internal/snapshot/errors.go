package snapshot

import (
	"errors"
	"fmt"
)

// Kind classifies fatal snapshot and restore errors.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindBadRequest
	KindUnsupportedVersion
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBadRequest:
		return "bad_request"
	case KindUnsupportedVersion:
		return "unsupported_version"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error is returned by every fatal path of the builder, engine and service.
// Msg is safe to show to callers; Err carries the internal cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below, so callers can write
// errors.Is(err, snapshot.ErrConflict).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrInternal           = &Error{Kind: KindInternal}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrBadRequest         = &Error{Kind: KindBadRequest}
	ErrUnsupportedVersion = &Error{Kind: KindUnsupportedVersion}
	ErrForbidden          = &Error{Kind: KindForbidden}
)

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
