// Package apperr defines the error taxonomy of the media library core.
//
// Core packages tag failures with a Kind; only the HTTP layer translates a
// Kind into a status code.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindInternal is anything not classified below.
	KindInternal Kind = iota
	// KindNotFound is a missing file or record.
	KindNotFound
	// KindProbe is a metadata extraction failure.
	KindProbe
	// KindEncode is a snapshot generation failure.
	KindEncode
	// KindPermission is an attempt to touch another owner's data.
	KindPermission
	// KindInvalid is malformed caller input.
	KindInvalid
	// KindConflict is a uniqueness violation, e.g. a duplicate album name.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindProbe:
		return "probe"
	case KindEncode:
		return "encode"
	case KindPermission:
		return "permission"
	case KindInvalid:
		return "invalid"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error carries a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an *Error.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// NotFound is shorthand for E(KindNotFound, ...).
func NotFound(op string, err error) error { return E(KindNotFound, op, err) }

// Permission is shorthand for E(KindPermission, ...).
func Permission(op string, err error) error { return E(KindPermission, op, err) }

// KindOf returns the Kind of the outermost *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
