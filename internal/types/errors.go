package types

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrSourceNotFound       = errors.New("source not found")
	ErrSource               = errors.New("source error")
	ErrProbe                = errors.New("probe error")
	ErrEncode               = errors.New("encode error")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrDegradedAudio        = errors.New("degraded audio artifact")
	ErrTranscribe           = errors.New("transcription error")
)

// Error is a kind-tagged failure with the external tool's diagnostic attached.
type Error struct {
	Kind   error
	Op     string
	Detail string
	Err    error
}

// NewError builds an Error of the given kind.
func NewError(kind error, op string, err error, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Detail != "" {
		msg += "\n" + e.Detail
	}
	return msg
}

// Is matches the error kind.
func (e *Error) Is(target error) bool {
	return e != nil && e.Kind == target
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
