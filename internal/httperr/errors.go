// Package httperr classifies the failures a connection can hit and maps
// them onto HTTP status codes.
package httperr

import (
	"errors"
	"fmt"
)

// Kind is the class of a failure.
type Kind int

const (
	// KindUnknown is any error that was never classified.
	KindUnknown Kind = iota
	// KindMalformedRequest means the bytes on the wire are not a request we can parse.
	KindMalformedRequest
	// KindNotFound means no route matched or the requested file is missing.
	KindNotFound
	// KindHandler is a failure inside a handler or its collaborators.
	KindHandler
	// KindTransport is a socket level failure; no response can be written.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindMalformedRequest:
		return "malformed request"
	case KindNotFound:
		return "not found"
	case KindHandler:
		return "handler error"
	case KindTransport:
		return "transport error"
	default:
		return fmt.Sprintf("unknown error kind: %d", int(k))
	}
}

// Error wraps an underlying error with its Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	// Status overrides the default status for the kind when non-zero.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		if e.Op == "" {
			return e.Kind.String()
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Malformed wraps err as a MalformedRequest.
func Malformed(op string, err error) *Error {
	return &Error{Kind: KindMalformedRequest, Op: op, Err: err}
}

// MalformedWithStatus is Malformed with a more specific 4xx status.
func MalformedWithStatus(op string, status int, err error) *Error {
	return &Error{Kind: KindMalformedRequest, Op: op, Status: status, Err: err}
}

// NotFound wraps err as a NotFound.
func NotFound(op string, err error) *Error {
	return &Error{Kind: KindNotFound, Op: op, Err: err}
}

// Handler wraps err as a HandlerError.
func Handler(op string, err error) *Error {
	return &Error{Kind: KindHandler, Op: op, Err: err}
}

// Transport wraps err as a TransportError.
func Transport(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusFor returns the response status for err. The second result is false
// for transport errors, which cannot be answered.
func StatusFor(err error) (int, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 500, true
	}
	if e.Status != 0 {
		return e.Status, true
	}
	switch e.Kind {
	case KindMalformedRequest:
		return 400, true
	case KindNotFound:
		return 404, true
	case KindTransport:
		return 0, false
	default:
		return 500, true
	}
}
