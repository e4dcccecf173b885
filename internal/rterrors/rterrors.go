// Package rterrors implements the closed taxonomy of runtime error kinds
// the interpreter can raise, plus the RuntimeError traceback formatting
// the driver prints for an error that reaches the top level.
package rterrors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// TypeError reports an operation attempted on a value of an unsupported
// type (arithmetic on a table, indexing a number, calling a string, ...).
type TypeError struct {
	Operation string
	Type      string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("attempt to %s a %s value", e.Operation, e.Type)
}

// ArgumentError reports a problem with a native call's argument count or
// general validity, identified by its 1-based position.
type ArgumentError struct {
	Nth     int
	Message string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("bad argument #%d (%s)", e.Nth, e.Message)
}

// ArgumentTypeError is the common case of ArgumentError: the argument's
// type didn't match what the native call required.
type ArgumentTypeError struct {
	Nth      int
	Expected string
	Got      string
}

func (e *ArgumentTypeError) Error() string {
	return fmt.Sprintf("bad argument #%d (%s expected, got %s)", e.Nth, e.Expected, e.Got)
}

// ExplicitError wraps the value passed to the error() native: Lua errors
// need not be strings, but the core only ever surfaces their text form.
type ExplicitError struct {
	Message string
}

func (e *ExplicitError) Error() string { return e.Message }

// IoError wraps a failure from the host's I/O boundary (reading a chunk,
// writing a report). The cause is wrapped with errors.Wrap, so %+v on
// Unwrap()'s result prints the stack recorded at wrap time; %+v on the
// IoError itself prints only Error().
type IoError struct {
	cause error
}

func NewIoError(cause error, context string) *IoError {
	return &IoError{cause: errors.Wrap(cause, context)}
}

func (e *IoError) Error() string { return e.cause.Error() }
func (e *IoError) Unwrap() error { return e.cause }

// Utf8Error reports malformed byte sequences rejected by a UTF-8-aware
// string operation.
type Utf8Error struct {
	Message string
}

func (e *Utf8Error) Error() string { return e.Message }

// Frame is one entry in a traceback: either the interpreter's main chunk
// or a named function at a source location.
type Frame struct {
	MainChunk bool
	Source    string
	Line      int
}

// RuntimeError pairs an underlying cause with the call stack captured at
// the moment it propagated out of the VM, rendered the way the reference
// interpreter's lua.c prints an uncaught error.
type RuntimeError struct {
	Cause     error
	Traceback []Frame
}

func (e *RuntimeError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Cause.Error())
	sb.WriteString("\nstack traceback:")
	for _, f := range e.Traceback {
		sb.WriteString("\n\t")
		if f.MainChunk {
			sb.WriteString("in main chunk")
		} else {
			fmt.Fprintf(&sb, "in function <%s:%d>", f.Source, f.Line)
		}
	}
	return sb.String()
}

func (e *RuntimeError) Unwrap() error { return e.Cause }
