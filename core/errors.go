package core

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the classified failures a handler can surface.
type ErrorKind int

const (
	// ErrOldMessage/ErrFutureMessage are view-time classifications; never
	// fatal.
	ErrOldMessage ErrorKind = iota
	ErrFutureMessage
	ErrInconsistentSubject
	// ErrNotFromProposer is an authority failure; drop and log.
	ErrNotFromProposer
	// ErrInvalidProposal/ErrInvalidSignature are proposer misbehavior;
	// drop and trigger a round change.
	ErrInvalidProposal
	ErrInvalidSignature
	// ErrFutureBlockMessage is benign; buffered and retried by timer.
	ErrFutureBlockMessage
	// ErrUnknown is any other verify-time failure; causes round change.
	ErrUnknown
	// ErrMalformedMessage means the decoder rejected the payload; drop
	// silently.
	ErrMalformedMessage
)

func (k ErrorKind) String() string {
	switch k {
	case ErrOldMessage:
		return "old_message"
	case ErrFutureMessage:
		return "future_message"
	case ErrInconsistentSubject:
		return "inconsistent_subject"
	case ErrNotFromProposer:
		return "not_from_proposer"
	case ErrInvalidProposal:
		return "invalid_proposal"
	case ErrInvalidSignature:
		return "invalid_signature"
	case ErrFutureBlockMessage:
		return "future_block_message"
	case ErrUnknown:
		return "unknown"
	case ErrMalformedMessage:
		return "malformed_message"
	default:
		return "unrecognized"
	}
}

// Error wraps a classified failure with its underlying cause, if any.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind ErrorKind) *Error {
	return &Error{Kind: kind}
}

func wrapErr(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err, if err is (or wraps) a *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Kind, true
}

// fail classifies a handler failure, records it on the metrics sink, and
// returns the wrapped *Error for the caller to log if it's worth a line
// above the metric bump. If cause is itself already a classified *Error
// (propagated up from a nested call instead of a raw backend error),
// its own kind wins over the kind passed in, rather than re-wrapping it
// under a possibly-wrong classification.
func (c *Core) fail(kind ErrorKind, cause error) *Error {
	if existing, ok := KindOf(cause); ok {
		kind = existing
	}

	var e *Error
	if cause != nil {
		e = wrapErr(kind, cause)
	} else {
		e = newErr(kind)
	}
	c.metrics.IncError(e.Kind)
	return e
}

// BackendError wraps a backend I/O failure (e.g. storage unavailable
// while fetching a header); the core cannot make safe progress without
// its backend and propagates these unchanged to the enclosing process.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend: %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
