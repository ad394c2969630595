package stratum

import (
	"fmt"

	"golang.org/x/xerrors"
)

// MalformedMessageError reports a syntactic violation of the Stratum wire
// grammar, or a registered variant's constructor rejecting an otherwise
// well-formed JSON object. It carries the offending payload so callers can
// log or inspect it before the connection is torn down.
type MalformedMessageError struct {
	// Method is the method name, if one could be extracted before the
	// failure occurred.
	Method string
	// Description is a human-readable explanation of what was wrong.
	Description string
	// Payload is the wire bytes that failed to parse.
	Payload []byte

	frame xerrors.Frame
	err   error
}

// Error implements error.
func (e *MalformedMessageError) Error() string {
	if e == nil {
		return ""
	}
	return e.Description
}

// Format implements fmt.Formatter so that "%+v" prints a call-site frame.
func (e *MalformedMessageError) Format(s fmt.State, c rune) {
	xerrors.FormatError(e, s, c)
}

// FormatError implements xerrors.Formatter.
func (e *MalformedMessageError) FormatError(p xerrors.Printer) (next error) {
	if e.Method != "" {
		p.Printf("malformed message for method %q: %s", e.Method, e.Description)
	} else {
		p.Printf("malformed message: %s", e.Description)
	}
	e.frame.Format(p)
	return e.err
}

// Unwrap implements xerrors.Wrapper.
func (e *MalformedMessageError) Unwrap() error {
	return e.err
}

// newMalformedMessageError builds a MalformedMessageError, capturing the
// caller's frame the way the teacher's NewError does.
func newMalformedMessageError(method, description string, payload []byte) *MalformedMessageError {
	e := &MalformedMessageError{
		Method:      method,
		Description: description,
		Payload:     payload,
		frame:       xerrors.Caller(1),
	}
	e.err = xerrors.New(description)
	return e
}

// NewMalformedMessageError builds a MalformedMessageError for use by a
// RequestParser or ResponseParser that rejects an otherwise well-formed
// wire object — e.g. a dialect's positional-params constructor finding too
// few elements.
func NewMalformedMessageError(method, description string, payload []byte) *MalformedMessageError {
	return newMalformedMessageError(method, description, payload)
}

// Sentinel errors for programmer-error conditions (spec §7): duplicate
// pending-request id, duplicate handler registration without replace, nil
// state, and sending on a closed transport. Check with errors.Is.
var (
	// ErrDuplicatePendingRequest is returned by the correlation table when
	// an id is already pending.
	ErrDuplicatePendingRequest = xerrors.New("stratum: identifier already has a pending request")
	// ErrDuplicateHandler is returned when registering a handler for a
	// method or variant that is already registered, without replace.
	ErrDuplicateHandler = xerrors.New("stratum: handler already registered")
	// ErrNilState is returned by setState when passed a nil state.
	ErrNilState = xerrors.New("stratum: state must not be nil")
	// ErrNotConnected is returned by send operations on a transport with no
	// current state.
	ErrNotConnected = xerrors.New("stratum: transport is not connected")
	// ErrUnsolicitedResponse is returned when a response arrives with no
	// matching pending request.
	ErrUnsolicitedResponse = xerrors.New("stratum: unsolicited response")
	// ErrUnknownMethod is returned when an inbound request names a method
	// with no registered handler in the active state.
	ErrUnknownMethod = xerrors.New("stratum: unknown method")
	// ErrClosed is returned by operations attempted after Transport.Close.
	ErrClosed = xerrors.New("stratum: transport closed")
	// ErrAlreadyBound is returned by Transport.Bind when called more than
	// once on the same transport.
	ErrAlreadyBound = xerrors.New("stratum: transport already bound")
)
