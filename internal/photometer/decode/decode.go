// Package decode turns one raw transport frame into a typed Payload,
// suppressing duplicate consecutive readings per stream.
package decode

import (
	"fmt"
	"time"

	"github.com/tessw/photocal/internal/photometer/payload"
)

// DedupPolicy controls how a decoder's single-slot predecessor memory is
// used to suppress duplicate readings.
//
// §9 of the design leaves this as an open question: the original decoder
// kept the previous sample and only emitted it once a later, non-duplicate
// sample confirmed it wasn't about to be superseded — which introduces a
// one-sample delay and silently drops the final sample of any stream. That
// behaviour is kept here as DedupDelayed for parity, but DedupImmediate
// (emit every arrival that doesn't exactly match its predecessor) is the
// default, per this design's stated preference.
type DedupPolicy int

const (
	// DedupImmediate emits every sample whose value differs from the
	// immediately preceding one; the first sample of a stream is always
	// emitted.
	DedupImmediate DedupPolicy = iota
	// DedupDelayed holds back one sample, emitting it only once a later,
	// distinct sample arrives. Nothing is emitted when the bootstrap sample
	// arrives, and the final sample of the stream is never emitted.
	DedupDelayed
)

// Error is returned when a frame cannot be decoded into a Payload.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "decode: " + e.Reason }

func newError(format string, args ...interface{}) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// Decoder turns one raw frame into a Sample, or fails with an *Error.
type Decoder interface {
	Decode(ts time.Time, text string) (payload.Sample, bool, error)
}

// bracketedKey is the equality tuple the bracketed decoder's dedup rule
// compares: (freq, t_sky, t_box).
type bracketedKey struct {
	freq, tSky, tBox float32
}
