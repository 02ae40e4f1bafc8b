package samplebuffer

import (
	"math"
	"testing"
	"time"

	"github.com/tessw/photocal/internal/photometer/payload"
)

func bracketedSample(freq float32) payload.Payload {
	return payload.Payload{Kind: payload.KindBracketed, Bracketed: payload.Bracketed{Freq: freq}}
}

func TestBuffer_RingModeFillsThenSlides(t *testing.T) {
	b := New(3, payload.Info{}, "test", 20.5)
	base := time.Now()

	for i := 0; i < 2; i++ {
		b.Enqueue(base.Add(time.Duration(i)*time.Second), bracketedSample(1000), false)
		if b.Ready() {
			t.Fatalf("buffer should not be ready before window is full, i=%d", i)
		}
	}

	b.Enqueue(base.Add(2*time.Second), bracketedSample(1000), false)
	if !b.Ready() {
		t.Fatal("buffer should be ready once window fills")
	}
	if b.Len() != 3 {
		t.Fatalf("expected length 3, got %d", b.Len())
	}

	b.Enqueue(base.Add(3*time.Second), bracketedSample(1000), false)
	if b.Len() != 3 {
		t.Fatalf("ring mode must not grow past window, got %d", b.Len())
	}
	if !b.Ready() {
		t.Fatal("buffer should remain ready once it has filled")
	}
}

func TestBuffer_CaptureModeGrowsUnbounded(t *testing.T) {
	b := New(2, payload.Info{}, "test", 20.5)
	base := time.Now()
	for i := 0; i < 5; i++ {
		b.Enqueue(base.Add(time.Duration(i)*time.Second), bracketedSample(1000), true)
	}
	if b.Len() != 5 {
		t.Fatalf("capture mode should grow unbounded, got len %d", b.Len())
	}
}

func TestBuffer_MakeContiguousTrimsToWindow(t *testing.T) {
	b := New(2, payload.Info{}, "test", 20.5)
	base := time.Now()
	for i := 0; i < 5; i++ {
		b.Enqueue(base.Add(time.Duration(i)*time.Second), bracketedSample(float32(1000+i)), true)
	}
	b.MakeContiguous()
	if b.Len() != 2 {
		t.Fatalf("expected trimmed length 2, got %d", b.Len())
	}
}

// TestBuffer_MedianSingleRoundIdenticalStreams is literal end-to-end
// scenario 1: 9 identical samples, freq_offset 0, zp_fict=20.50.
func TestBuffer_MedianSingleRoundIdenticalStreams(t *testing.T) {
	b := New(9, payload.Info{FreqOffset: 0}, "ref", 20.50)
	base := time.Now()
	for i := 0; i < 9; i++ {
		b.Enqueue(base.Add(time.Duration(i)*time.Second), bracketedSample(1000.0), false)
	}
	stats := b.Median()
	if stats.FreqMedian != 1000.0 {
		t.Errorf("freq_median = %v, want 1000.0", stats.FreqMedian)
	}
	if stats.Stdev != 0 {
		t.Errorf("stdev = %v, want 0", stats.Stdev)
	}
	wantMag := 20.50 - 2.5*math.Log10(1000.0)
	if math.Abs(stats.Magnitude-wantMag) > 1e-9 {
		t.Errorf("magnitude = %v, want %v", stats.Magnitude, wantMag)
	}
}

// TestBuffer_MagnitudeFormula verifies magnitude = zp_fict - 2.5*log10(freq-off)
// for all freq > off, as the design's magnitude invariant requires.
func TestBuffer_MagnitudeFormula(t *testing.T) {
	cases := []struct {
		freq, off, zpFict float64
	}{
		{2000.0, 0, 20.5},
		{500.0, 10, 20.5},
		{123.4, 1.2, 19.99},
	}
	for _, c := range cases {
		b := New(1, payload.Info{FreqOffset: float32(c.off)}, "test", float32(c.zpFict))
		b.Enqueue(time.Now(), bracketedSample(float32(c.freq)), false)
		stats := b.Median()
		want := c.zpFict - 2.5*math.Log10(c.freq-c.off)
		if math.Abs(stats.Magnitude-want) > 1e-6 {
			t.Errorf("magnitude(%v,%v,%v) = %v, want %v", c.freq, c.off, c.zpFict, stats.Magnitude, want)
		}
	}
}

func TestBuffer_Speed(t *testing.T) {
	b := New(5, payload.Info{}, "test", 20.5)
	base := time.Now()
	for i := 0; i < 5; i++ {
		b.Enqueue(base.Add(time.Duration(i)*time.Second), bracketedSample(1000), false)
	}
	speed := b.Speed()
	if math.Abs(speed-1.0) > 1e-9 {
		t.Errorf("speed = %v, want 1.0 sample/sec", speed)
	}
}
