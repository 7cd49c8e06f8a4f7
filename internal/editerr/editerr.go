// Package editerr defines the error kinds surfaced by the editor core.
//
// Every error returned across a package boundary is an *Error whose kind is
// one of the sentinels below, so callers match with errors.Is and show the
// message to the user unchanged.
package editerr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a rejected command. State is left unchanged.
	ErrValidation = errors.New("validation error")
	// ErrIO marks an unreadable source or an unwritable destination.
	ErrIO = errors.New("io error")
	// ErrEncode marks a failure reported by the media engine.
	ErrEncode = errors.New("encode error")
	// ErrProjectFormat marks malformed or incomplete project data.
	ErrProjectFormat = errors.New("project format error")
)

// Error is a kinded error with a human readable message.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return e.Msg + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func IO(msg string, err error) error {
	return &Error{Kind: ErrIO, Msg: msg, Err: err}
}

// Encode wraps an engine failure. The engine text is kept verbatim as the
// message so it can be shown to the user as-is.
func Encode(err error) error {
	return &Error{Kind: ErrEncode, Err: err}
}

func ProjectFormat(format string, args ...any) error {
	return &Error{Kind: ErrProjectFormat, Msg: fmt.Sprintf(format, args...)}
}

// Kind reports which sentinel err carries, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrIO, ErrEncode, ErrProjectFormat} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
