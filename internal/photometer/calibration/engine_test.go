package calibration

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/tessw/photocal/internal/photometer/payload"
	"github.com/tessw/photocal/internal/timeutil"
)

func feed(ch chan payload.Sample, base time.Time, n int, refFreq, testFreq float32) {
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * 10 * time.Millisecond)
		ch <- payload.Sample{Timestamp: ts, Payload: payload.Payload{
			Kind:      payload.KindBracketed,
			Bracketed: payload.Bracketed{Freq: refFreq},
		}}
		ch <- payload.Sample{Timestamp: ts, Payload: payload.Payload{
			Kind:       payload.KindStructured,
			Structured: payload.Structured{UDPSeq: uint32(i), Freq: testFreq},
		}}
	}
}

// TestEngine_SingleRoundIdenticalStreams is literal end-to-end scenario 1.
func TestEngine_SingleRoundIdenticalStreams(t *testing.T) {
	ch := make(chan payload.Sample, 32)
	base := time.Now()
	feed(ch, base, 9, 1000.0, 1000.0)

	e := New(ch, Options{
		Window:    9,
		NumRounds: 1,
		RoundMin:  1 * time.Millisecond,
		ZPFict:    20.50,
		RefInfo:   payload.Info{ZP: 20.50},
		TestInfo:  payload.Info{},
	})

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(summary.Rounds) != 1 {
		t.Fatalf("expected 1 round, got %d", len(summary.Rounds))
	}
	if math.Abs(summary.Rounds[0].ZPDiff-20.50) > 1e-9 {
		t.Errorf("zp_round = %v, want 20.50", summary.Rounds[0].ZPDiff)
	}
	if math.Abs(summary.FinalZP-20.50) > 1e-9 {
		t.Errorf("final_zp = %v, want 20.50", summary.FinalZP)
	}
}

func TestEngine_SetOnRoundCalledPerRound(t *testing.T) {
	ch := make(chan payload.Sample, 64)
	base := time.Now()
	feed(ch, base, 9, 1000.0, 1000.0)
	feed(ch, base.Add(100*time.Millisecond), 9, 1000.0, 1000.0)

	e := New(ch, Options{
		Window:    9,
		NumRounds: 2,
		RoundMin:  1 * time.Millisecond,
		ZPFict:    20.50,
		RefInfo:   payload.Info{ZP: 20.50},
	})

	var rounds []Result
	e.SetOnRound(func(r Result) { rounds = append(rounds, r) })

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(rounds) != len(summary.Rounds) {
		t.Fatalf("OnRound called %d times, want %d", len(rounds), len(summary.Rounds))
	}
	if rounds[0].Round != 1 || rounds[1].Round != 2 {
		t.Errorf("rounds = %+v, want rounds 1 then 2 in order", rounds)
	}
}

// TestEngine_MagnitudeDifferential is literal end-to-end scenario 2.
func TestEngine_MagnitudeDifferential(t *testing.T) {
	ch := make(chan payload.Sample, 32)
	base := time.Now()
	feed(ch, base, 9, 1000.0, 2000.0)

	e := New(ch, Options{
		Window:    9,
		NumRounds: 1,
		RoundMin:  1 * time.Millisecond,
		ZPFict:    20.50,
		RefInfo:   payload.Info{ZP: 20.50},
		TestInfo:  payload.Info{},
	})

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if math.Abs(summary.Rounds[0].ZPDiff-21.25) > 1e-2 {
		t.Errorf("zp_round = %v, want ~21.25", summary.Rounds[0].ZPDiff)
	}
}

func TestEngine_PipelineClosedBeforeReady(t *testing.T) {
	ch := make(chan payload.Sample)
	close(ch)

	e := New(ch, Options{
		Window:    9,
		NumRounds: 1,
		RoundMin:  1 * time.Millisecond,
		ZPFict:    20.50,
	})

	_, err := e.Run(context.Background())
	if err != ErrPipelineClosed {
		t.Fatalf("Run error = %v, want ErrPipelineClosed", err)
	}
}

func TestEngine_RoundTimeout(t *testing.T) {
	ch := make(chan payload.Sample, 32)
	base := time.Now()
	// Only 3 of the 9 required ref/test samples: never becomes ready.
	feed(ch, base, 3, 1000.0, 1000.0)

	e := New(ch, Options{
		Window:    9,
		NumRounds: 1,
		RoundMin:  1 * time.Millisecond,
		RoundMax:  20 * time.Millisecond,
		ZPFict:    20.50,
	})

	_, err := e.Run(context.Background())
	var timeoutErr *RoundTimeoutError
	if err == nil {
		t.Fatal("expected a timeout error, got nil")
	}
	if !asRoundTimeout(err, &timeoutErr) {
		t.Fatalf("Run error = %v (%T), want *RoundTimeoutError", err, err)
	}
}

// TestEngine_RoundTimeoutWithMockClock drives the RoundMax timeout via an
// injected timeutil.MockClock instead of real wall-clock sleeping.
func TestEngine_RoundTimeoutWithMockClock(t *testing.T) {
	ch := make(chan payload.Sample, 8)
	clock := timeutil.NewMockClock(time.Now())

	e := New(ch, Options{
		Window:    9,
		NumRounds: 1,
		RoundMin:  1 * time.Millisecond,
		RoundMax:  20 * time.Millisecond,
		ZPFict:    20.50,
		Clock:     clock,
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			time.Sleep(time.Millisecond)
			clock.Advance(5 * time.Millisecond)
		}
		close(done)
	}()

	_, err := e.Run(context.Background())
	<-done
	var timeoutErr *RoundTimeoutError
	if !asRoundTimeout(err, &timeoutErr) {
		t.Fatalf("Run error = %v (%T), want *RoundTimeoutError", err, err)
	}
}

func asRoundTimeout(err error, target **RoundTimeoutError) bool {
	if rt, ok := err.(*RoundTimeoutError); ok {
		*target = rt
		return true
	}
	return false
}

func TestEngine_ContextCancellation(t *testing.T) {
	ch := make(chan payload.Sample)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(ch, Options{Window: 9, NumRounds: 1, RoundMin: time.Millisecond})
	_, err := e.Run(ctx)
	if err != context.Canceled {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
}
