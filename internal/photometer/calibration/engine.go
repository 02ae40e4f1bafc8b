// Package calibration synchronises the reference and test sample streams,
// runs a configured number of rounds, and derives a final zero-point from
// the per-round estimates.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tessw/photocal/internal/monitoring"
	"github.com/tessw/photocal/internal/photometer/payload"
	"github.com/tessw/photocal/internal/photometer/samplebuffer"
	"github.com/tessw/photocal/internal/roundstat"
	"github.com/tessw/photocal/internal/timeutil"
)

// ErrPipelineClosed is returned when the input channel closes before a
// round could complete.
var ErrPipelineClosed = errors.New("calibration: pipeline closed before round completed")

// RoundTimeoutError is returned when RoundMax is configured and exceeded
// before both streams became ready (§9 design note: the round timer is
// unbounded by default, this is the opt-in upper bound).
type RoundTimeoutError struct {
	Round   int
	Elapsed time.Duration
}

func (e *RoundTimeoutError) Error() string {
	return fmt.Sprintf("calibration: round %d timed out after %s waiting for readiness", e.Round, e.Elapsed)
}

// Options configures the calibration engine. Zero values fall back to the
// documented defaults.
type Options struct {
	Window         int
	NumRounds      int
	RoundMin       time.Duration
	RoundMax       time.Duration // 0 = unbounded
	OffsetZP       float64
	ZPFict         float32
	SessionID      string
	RefInfo        payload.Info
	TestInfo       payload.Info

	// OnRound, if set, is called synchronously after each round finalises,
	// letting a caller publish live progress (e.g. a debug status route)
	// without the engine knowing anything about how that's exposed.
	OnRound func(Result)

	// Clock abstracts round-timing so tests can drive the round-min/round-max
	// state machine deterministically instead of sleeping real wall-clock
	// time. Defaults to timeutil.RealClock{}.
	Clock timeutil.Clock
}

// RoundStats captures one stream's per-round statistics, accumulated across
// rounds in the engine's vectors.
type RoundStats struct {
	FreqMedian float64
	Stdev      float64
	Magnitude  float64
	Window     samplebuffer.TimeWindow
	Duration   time.Duration
}

// Result is the outcome of a completed round: both streams' statistics and
// the zero-point derived from their magnitude difference.
type Result struct {
	Round  int
	Ref    RoundStats
	Test   RoundStats
	ZPDiff float64 // ref_info.ZP + (ref_magnitude - test_magnitude), rounded to 2dp
}

// Summary is the aggregate outcome after all rounds have completed.
type Summary struct {
	FinalZP     float64
	Rounds      []Result
	RefInfo     payload.Info
	TestInfo    payload.Info
	UsedMode    bool
}

// Engine runs the multi-round calibration state machine described in
// §4.5: fill both buffers, switch to capture mode once ready, finalise a
// round once the minimum duration has elapsed and readiness holds, then
// repeat for NumRounds and aggregate.
type Engine struct {
	opts  Options
	ref   *samplebuffer.Buffer
	test  *samplebuffer.Buffer
	ready bool

	input <-chan payload.Sample
}

// New creates a calibration Engine reading Samples from input.
func New(input <-chan payload.Sample, opts Options) *Engine {
	if opts.Window <= 0 {
		opts.Window = 9
	}
	if opts.NumRounds <= 0 {
		opts.NumRounds = 5
	}
	if opts.RoundMin <= 0 {
		opts.RoundMin = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Engine{
		opts:  opts,
		ref:   samplebuffer.New(opts.Window, opts.RefInfo, "ref", opts.ZPFict),
		test:  samplebuffer.New(opts.Window, opts.TestInfo, "test", opts.ZPFict),
		input: input,
	}
}

// SetOnRound installs (or replaces) the per-round progress callback after
// construction, so a caller that needs the engine's generated SessionID
// before it can build that callback (e.g. to seed a status tracker) isn't
// forced to thread it through New.
func (e *Engine) SetOnRound(fn func(Result)) {
	e.opts.OnRound = fn
}

// Run executes all configured rounds in sequence and returns the aggregated
// Summary. It propagates ErrPipelineClosed or a *RoundTimeoutError if either
// occurs mid-round.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	results := make([]Result, 0, e.opts.NumRounds)
	for round := 1; round <= e.opts.NumRounds; round++ {
		res, err := e.runRound(ctx, round)
		if err != nil {
			return Summary{}, err
		}
		results = append(results, res)
		if e.opts.OnRound != nil {
			e.opts.OnRound(res)
		}
	}

	zps := make([]float64, len(results))
	for i, r := range results {
		zps[i] = r.ZPDiff
	}
	aggregated := roundstat.ModeOrMedian(zps, 2, fmt.Sprintf("session %s", e.opts.SessionID))
	finalZP := roundstat.Round(aggregated+e.opts.OffsetZP, 2)

	monitoring.Logf("calibration session %s: final ZP = %.2f over %d rounds", e.opts.SessionID, finalZP, len(results))

	return Summary{
		FinalZP:  finalZP,
		Rounds:   results,
		RefInfo:  e.opts.RefInfo,
		TestInfo: e.opts.TestInfo,
	}, nil
}

// runRound drives one round's filling/capturing/finalising state machine.
func (e *Engine) runRound(ctx context.Context, round int) (Result, error) {
	clock := e.opts.Clock
	begin := clock.Now()

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case sample, ok := <-e.input:
			if !ok {
				return Result{}, ErrPipelineClosed
			}
			e.route(sample)
		default:
			// No sample immediately available: check the round timer and, if
			// a sample is needed, block briefly on the channel instead of
			// busy-spinning.
		}

		if e.ready && clock.Since(begin) >= e.opts.RoundMin {
			return e.finalise(round, begin)
		}

		if e.opts.RoundMax > 0 && clock.Since(begin) >= e.opts.RoundMax && !e.ready {
			return Result{}, &RoundTimeoutError{Round: round, Elapsed: clock.Since(begin)}
		}

		// Block for the next sample (or cancellation) rather than spin.
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case sample, ok := <-e.input:
			if !ok {
				return Result{}, ErrPipelineClosed
			}
			e.route(sample)
		case <-clock.After(10 * time.Millisecond):
		}
	}
}

// route enqueues a sample into the correct stream buffer, using capture mode
// once the round has become globally ready.
func (e *Engine) route(s payload.Sample) {
	switch s.Payload.Kind {
	case payload.KindStructured:
		e.test.Enqueue(s.Timestamp, s.Payload, e.ready)
	case payload.KindBracketed:
		e.ref.Enqueue(s.Timestamp, s.Payload, e.ready)
	}
	e.ready = e.ref.Ready() && e.test.Ready()
}

func (e *Engine) finalise(round int, begin time.Time) (Result, error) {
	e.ref.MakeContiguous()
	e.test.MakeContiguous()

	refStats := e.ref.Median()
	testStats := e.test.Median()

	magDiff := refStats.Magnitude - testStats.Magnitude
	zp := roundstat.Round(float64(e.opts.RefInfo.ZP)+magDiff, 2)

	monitoring.Logf("round %d: new ZP = %.2f (ref-test mag diff %.4f, ref ZP %.2f)", round, zp, magDiff, e.opts.RefInfo.ZP)

	return Result{
		Round: round,
		Ref: RoundStats{
			FreqMedian: refStats.FreqMedian,
			Stdev:      refStats.Stdev,
			Magnitude:  refStats.Magnitude,
			Window:     refStats.Window,
			Duration:   refStats.Duration,
		},
		Test: RoundStats{
			FreqMedian: testStats.FreqMedian,
			Stdev:      testStats.Stdev,
			Magnitude:  testStats.Magnitude,
			Window:     testStats.Window,
			Duration:   testStats.Duration,
		},
		ZPDiff: zp,
	}, nil
}
