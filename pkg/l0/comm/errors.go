package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates the session is closed and can't be reused.
	ErrClosed = errors.New("session closed")
	// ErrAlreadyOpen indicates Open is called on a session not in Idle.
	ErrAlreadyOpen = errors.New("session already open")
	// ErrNotFound indicates no matching device answered the handshake.
	ErrNotFound = errors.New("device not found")
)

// DecodeErrorKind classifies decode failures.
type DecodeErrorKind int

// Decode error kinds
const (
	// UnknownKind means the first character selects no known packet kind.
	UnknownKind DecodeErrorKind = iota
	// Malformed means the packet has the wrong length or a non-hex field.
	Malformed
)

// DecodeError is returned when an inbound packet is discarded.
type DecodeError struct {
	Kind   DecodeErrorKind
	Reason string
}

// Error implements error.
func (e *DecodeError) Error() string {
	switch e.Kind {
	case UnknownKind:
		return "unknown packet kind: " + e.Reason
	default:
		return "malformed packet: " + e.Reason
	}
}

func malformed(format string, args ...interface{}) error {
	return &DecodeError{Kind: Malformed, Reason: fmt.Sprintf(format, args...)}
}

// OpenError wraps the cause of a failed Open.
type OpenError struct {
	Hint string
	Err  error
}

// Error implements error.
func (e *OpenError) Error() string {
	return fmt.Sprintf("open %q: %v: %v", e.Hint, ErrNotFound, e.Err)
}

// Unwrap exposes the cause.
func (e *OpenError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNotFound) match any OpenError.
func (e *OpenError) Is(target error) bool {
	return target == ErrNotFound
}

// QueueFullError is returned when a serial payload doesn't fit the WriteQueue.
type QueueFullError struct {
	Needed int
	Free   int
}

// Error implements error.
func (e *QueueFullError) Error() string {
	return fmt.Sprintf("serial queue full: need %d chunks, %d free", e.Needed, e.Free)
}
