package decode

import (
	"encoding/json"
	"time"

	"github.com/tessw/photocal/internal/photometer/payload"
)

// Structured decodes the test photometer's JSON reading and drops exact
// consecutive duplicates (matched on udp_seq).
type Structured struct {
	policy DedupPolicy

	hasPrev  bool
	prevSeq  uint32
	prevSamp payload.Sample
}

// NewStructured creates a Structured decoder with the given dedup policy.
func NewStructured(policy DedupPolicy) *Structured {
	return &Structured{policy: policy}
}

// Decode parses text as the Structured JSON shape. The returned bool reports
// whether a sample should be emitted downstream (false means the frame was a
// duplicate, or — under DedupDelayed — is being held back).
func (d *Structured) Decode(ts time.Time, text string) (payload.Sample, bool, error) {
	var s payload.Structured
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return payload.Sample{}, false, newError("invalid structured JSON: %v", err)
	}

	cur := payload.Sample{Timestamp: ts, Payload: payload.Payload{Kind: payload.KindStructured, Structured: s}}

	switch d.policy {
	case DedupDelayed:
		return d.decodeDelayed(cur, s.UDPSeq)
	default:
		return d.decodeImmediate(cur, s.UDPSeq)
	}
}

func (d *Structured) decodeImmediate(cur payload.Sample, seq uint32) (payload.Sample, bool, error) {
	if d.hasPrev && seq == d.prevSeq {
		// Exact duplicate (same udp_seq): drop silently, but refresh the
		// stored predecessor so a run of N duplicates collapses correctly.
		d.prevSeq = seq
		d.prevSamp = cur
		return payload.Sample{}, false, nil
	}
	d.hasPrev = true
	d.prevSeq = seq
	d.prevSamp = cur
	return cur, true, nil
}

func (d *Structured) decodeDelayed(cur payload.Sample, seq uint32) (payload.Sample, bool, error) {
	if !d.hasPrev {
		// Bootstrapping: nothing to emit yet.
		d.hasPrev = true
		d.prevSeq = seq
		d.prevSamp = cur
		return payload.Sample{}, false, nil
	}
	if seq == d.prevSeq {
		// Duplicate of the held-back sample: refresh it, emit nothing.
		d.prevSamp = cur
		return payload.Sample{}, false, nil
	}
	// New, distinct sample: emit the one we were holding, then hold this one.
	toEmit := d.prevSamp
	d.prevSeq = seq
	d.prevSamp = cur
	return toEmit, true, nil
}
