package bootstrap

import (
	"errors"
)

// Failure kinds. Every error returned by this package is an *Error whose
// Kind is one of these.
var (
	ErrFetch      = errors.New("fetch error")
	ErrParse      = errors.New("parse error")
	ErrWrite      = errors.New("write error")
	ErrModuleLoad = errors.New("module load error")
	ErrImport     = errors.New("import error")
	ErrExecution  = errors.New("execution error")
)

// Error records which stage failed, how, and on what.
type Error struct {
	Stage   Stage
	Kind    error
	Subject string // path or module name; empty when not applicable
	Err     error
}

func (e *Error) Error() string {
	msg := e.Stage.String() + ": " + e.Kind.Error()
	if e.Subject != "" {
		msg += " (" + e.Subject + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(stage Stage, kind error, subject string, err error) *Error {
	return &Error{Stage: stage, Kind: kind, Subject: subject, Err: err}
}

// StageOf reports the stage at which err occurred, if it is an *Error.
func StageOf(err error) (Stage, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage, true
	}
	return 0, false
}
