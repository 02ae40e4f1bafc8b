// Package samplebuffer holds a bounded sliding window of photometer samples
// and computes the robust statistics (median frequency, standard deviation,
// magnitude) the calibration engine needs per round.
package samplebuffer

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/tessw/photocal/internal/monitoring"
	"github.com/tessw/photocal/internal/photometer/payload"
)

// Buffer is a ring-mode sliding window of (timestamp, payload) pairs with a
// readiness flag, plus an unbounded capture mode used once the window has
// filled for the first time in a round.
type Buffer struct {
	window int
	label  string
	info   payload.Info
	zpFict float32

	timestamps []time.Time
	payloads   []payload.Payload
	ready      bool
}

// New creates a Buffer for one stream (ref or test) with the given window
// size, device Info and the fictitious reference zero-point used to convert
// raw frequency into a provisional magnitude.
func New(window int, info payload.Info, label string, zpFict float32) *Buffer {
	return &Buffer{
		window: window,
		label:  label,
		info:   info,
		zpFict: zpFict,
	}
}

// Ready reports whether the window is full.
func (b *Buffer) Ready() bool { return b.ready }

// Len returns the number of samples currently held.
func (b *Buffer) Len() int { return len(b.timestamps) }

// Enqueue appends one sample. In ring mode (accumulate=false) the window
// slides once full, dropping the oldest sample; in capture mode
// (accumulate=true) it grows without bound, used to retain the full
// within-round history once the round has become ready.
func (b *Buffer) Enqueue(ts time.Time, p payload.Payload, accumulate bool) {
	if accumulate {
		b.timestamps = append(b.timestamps, ts)
		b.payloads = append(b.payloads, p)
		return
	}

	if len(b.timestamps) < b.window {
		b.timestamps = append(b.timestamps, ts)
		b.payloads = append(b.payloads, p)
		if len(b.timestamps) < b.window {
			monitoring.Logf("%s: waiting for %d more samples", b.label, b.window-len(b.timestamps))
		} else {
			b.ready = true
		}
		return
	}

	// Window already full: drop the head, append the tail.
	b.timestamps = append(b.timestamps[1:], ts)
	b.payloads = append(b.payloads[1:], p)
	b.ready = true
}

// TimeWindow is the (first, last) timestamp pair a statistics computation
// was drawn from.
type TimeWindow struct {
	Start, End time.Time
}

// Stats is the result of Median(): robust per-window statistics plus the
// time span they were computed over.
type Stats struct {
	FreqMedian float64
	Stdev      float64
	Magnitude  float64
	Window     TimeWindow
	Duration   time.Duration
}

// Median computes robust statistics over the most recent `window` samples:
// the median frequency, the sample standard deviation about that median,
// the magnitude derived from it, and the time span of the slice.
func (b *Buffer) Median() Stats {
	n := len(b.payloads)
	start := 0
	if n > b.window {
		start = n - b.window
	}
	slice := b.payloads[start:n]
	tslice := b.timestamps[start:n]

	freqs := make([]float64, len(slice))
	for i, p := range slice {
		freqs[i] = float64(p.Freq())
	}

	sorted := append([]float64(nil), freqs...)
	sortFloat64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	var sumSq float64
	for _, f := range freqs {
		d := f - median
		sumSq += d * d
	}
	var stdev float64
	if len(freqs) > 1 {
		stdev = math.Sqrt(sumSq / float64(len(freqs)-1))
	}

	magnitude := float64(b.zpFict) - 2.5*math.Log10(median-float64(b.info.FreqOffset))

	start0 := tslice[0]
	end := tslice[len(tslice)-1]

	return Stats{
		FreqMedian: median,
		Stdev:      stdev,
		Magnitude:  magnitude,
		Window:     TimeWindow{Start: start0, End: end},
		Duration:   end.Sub(start0),
	}
}

// MakeContiguous restores the ring-buffer discipline at a round boundary:
// only the most recent `window` samples are kept, discarding any extra
// history accumulated in capture mode.
func (b *Buffer) MakeContiguous() {
	n := len(b.payloads)
	if n <= b.window {
		return
	}
	start := n - b.window
	b.timestamps = append([]time.Time(nil), b.timestamps[start:]...)
	b.payloads = append([]payload.Payload(nil), b.payloads[start:]...)
}

// Speed returns the sample rate (samples per second) over the whole queue,
// used to throttle live display when two streams run at different cadence.
func (b *Buffer) Speed() float64 {
	n := len(b.timestamps)
	if n < 2 {
		return 0
	}
	dur := b.timestamps[n-1].Sub(b.timestamps[0]).Seconds()
	if dur <= 0 {
		return 0
	}
	return float64(n-1) / dur
}

// Info returns the device descriptor this buffer was created for.
func (b *Buffer) Info() payload.Info { return b.info }

func sortFloat64s(v []float64) {
	// Small windows (typically 9 samples): insertion sort keeps this
	// allocation-free and avoids importing sort for a handful of elements.
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] > v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
}
