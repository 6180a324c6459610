package spin

import "fmt"

// Code is a runtime error code. Values match the Spinnaker spinError enum.
type Code int

const (
	CodeSuccess        Code = 0
	CodeError          Code = -1001
	CodeNotInitialized Code = -1002
	CodeNotImplemented Code = -1003
	CodeResourceInUse  Code = -1004
	CodeAccessDenied   Code = -1005
	CodeInvalidHandle  Code = -1006
	CodeNoData         Code = -1008
	CodeInvalidParam   Code = -1009
	CodeIO             Code = -1010
	CodeTimeout        Code = -1011
	CodeAbort          Code = -1012
	CodeNotAvailable   Code = -1014
	CodeInvalidValue   Code = -1019
	CodeBusy           Code = -1022
	CodeOutOfRange     Code = -2002
	CodeAccess         Code = -2006
)

// Error is the single failure kind surfaced by a runtime backend.
type Error struct {
	Op   string // runtime call, e.g. "GetNextImage"
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("spinnaker: %s failed (code %d)", e.Op, e.Code)
	}
	return fmt.Sprintf("spinnaker: %s failed (code %d): %s", e.Op, e.Code, e.Msg)
}

// Is reports whether target is a *Error with the same code, so callers can
// write errors.Is(err, spin.ErrTimeout).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Op == "" || t.Op == e.Op)
}

// Sentinel errors for errors.Is comparisons.
var (
	ErrTimeout        = &Error{Code: CodeTimeout}
	ErrNotInitialized = &Error{Code: CodeNotInitialized}
	ErrAccess         = &Error{Code: CodeAccess}
)

func newError(op string, code Code, format string, args ...interface{}) *Error {
	return &Error{Op: op, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// NodeError reports a node that could not be used because it is missing,
// unavailable, unreadable or not writable.
type NodeError struct {
	Node  string
	Entry string // enumeration entry, if any
	Step  string // "node retrieval", "enum entry retrieval", "set", ...
	Err   error
}

func (e *NodeError) Error() string {
	target := e.Node
	if e.Entry != "" {
		target += "=" + e.Entry
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", target, e.Step, e.Err)
	}
	return fmt.Sprintf("%s (%s): not available", target, e.Step)
}

func (e *NodeError) Unwrap() error { return e.Err }
