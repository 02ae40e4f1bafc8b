// Package transport yields timestamped raw text frames from the two
// photometer wire transports (UDP and serial). Both variants satisfy the
// same Transport contract so the calibration engine never needs to know
// which one it is reading from.
package transport

import (
	"context"
	"fmt"
	"time"
)

// Transport reads one raw text frame at a time, stamping it with the
// wall-clock time the frame finished materialising.
type Transport interface {
	// Read blocks until a frame is available, ctx is cancelled, or a
	// TransportError occurs.
	Read(ctx context.Context) (time.Time, string, error)
	// Close releases the underlying socket/serial port.
	Close() error
}

// ErrorKind classifies a TransportError.
type ErrorKind int

const (
	// ErrIO covers socket/serial read failures.
	ErrIO ErrorKind = iota
	// ErrInvalidUTF8 covers frames that are not valid UTF-8.
	ErrInvalidUTF8
	// ErrDisconnected covers the device going away mid-stream.
	ErrDisconnected
)

// Error is the fatal-to-its-reader-task error a Transport returns.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
