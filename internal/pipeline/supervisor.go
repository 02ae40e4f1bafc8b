// Package pipeline wires the transports, decoders and calibration engine
// together: it spawns one reader task per stream and one calibration task,
// and shuts them down cooperatively on cancellation.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tessw/photocal/internal/monitoring"
	"github.com/tessw/photocal/internal/photometer/calibration"
	"github.com/tessw/photocal/internal/photometer/decode"
	"github.com/tessw/photocal/internal/photometer/payload"
	"github.com/tessw/photocal/internal/photometer/transport"
)

// channelCapacity is the bounded FIFO size between readers and the engine;
// readers apply backpressure once it fills.
const channelCapacity = 32

// Reader pairs one transport with its decoder, producing one stream of
// Samples onto the shared channel.
type Reader struct {
	Label     string
	Transport transport.Transport
	Decoder   decode.Decoder
}

// Supervisor spawns the reader tasks and the calibration task and manages
// their lifetimes relative to a shared context.
type Supervisor struct {
	readers   []Reader
	engine    *calibration.Engine
	ch        chan payload.Sample
	sessionID string
}

// SessionID returns the correlation identifier this Supervisor's calibration
// run was tagged with, whether supplied by the caller or generated in New.
func (s *Supervisor) SessionID() string {
	return s.sessionID
}

// SetOnRound installs a per-round progress callback on the underlying
// Engine, for callers that only learn their SessionID from New's return
// value (e.g. to seed a debug status tracker) and so can't pass the
// callback in through Options up front.
func (s *Supervisor) SetOnRound(fn func(calibration.Result)) {
	s.engine.SetOnRound(fn)
}

// New creates a Supervisor over the given readers, feeding a calibration
// Engine constructed with the bounded channel this Supervisor owns. A blank
// opts.SessionID is replaced with a freshly generated one, so every
// calibration run (its log lines and its debug-route status) can be
// correlated by a single identifier even when the caller doesn't supply one.
func New(readers []Reader, opts calibration.Options) *Supervisor {
	if opts.SessionID == "" {
		opts.SessionID = uuid.New().String()
	}
	ch := make(chan payload.Sample, channelCapacity)
	return &Supervisor{
		readers:   readers,
		engine:    calibration.New(ch, opts),
		ch:        ch,
		sessionID: opts.SessionID,
	}
}

// Run starts every reader task and the calibration task, blocks until the
// calibration task completes (or ctx is cancelled), and returns its result.
// The channel is closed once all reader tasks have exited, signalling the
// calibration task that no more samples will arrive.
func (s *Supervisor) Run(ctx context.Context) (calibration.Summary, error) {
	var readerWG sync.WaitGroup
	for _, r := range s.readers {
		readerWG.Add(1)
		go func(r Reader) {
			defer readerWG.Done()
			s.runReader(ctx, r)
		}(r)
	}

	go func() {
		readerWG.Wait()
		close(s.ch)
	}()

	return s.engine.Run(ctx)
}

// runReader loops reading raw frames from one transport, decoding and
// forwarding non-duplicate Samples onto the shared channel, until the
// transport fails or ctx is cancelled.
func (s *Supervisor) runReader(ctx context.Context, r Reader) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ts, text, err := r.Transport.Read(ctx)
		if err != nil {
			monitoring.Logf("%s: transport error, reader exiting: %v", r.Label, err)
			return
		}

		sample, ok, err := r.Decoder.Decode(ts, text)
		if err != nil {
			monitoring.Logf("%s: decode error, dropping frame: %v", r.Label, err)
			continue
		}
		if !ok {
			continue // duplicate, silently dropped
		}

		select {
		case s.ch <- sample:
		case <-ctx.Done():
			return
		}
	}
}

// SessionLabel builds a human-readable identifier for a calibration run,
// combining the wall-clock session timestamp with the reader labels.
func SessionLabel(readers []Reader, start time.Time) string {
	names := make([]string, len(readers))
	for i, r := range readers {
		names[i] = r.Label
	}
	return fmt.Sprintf("%s@%s", names, start.Format(time.RFC3339))
}
