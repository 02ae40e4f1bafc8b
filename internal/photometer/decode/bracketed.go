package decode

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tessw/photocal/internal/photometer/payload"
)

var bracketedPatterns = []*regexp.Regexp{
	// Hz encoding: <fH 01000><tA +2500><tO +2000><mZ -0000>
	regexp.MustCompile(`^<fH([ +]\d{5})><tA ([+-]\d{4})><tO ([+-]\d{4})><mZ ([+-]\d{4})>`),
	// milliHz encoding: <fm 01000><tA +2500><tO +2000><mZ -0000>
	regexp.MustCompile(`^<fm([ +]\d{5})><tA ([+-]\d{4})><tO ([+-]\d{4})><mZ ([+-]\d{4})>`),
}

// Bracketed decodes the reference photometer's bracketed-fields reading and
// drops consecutive duplicates matched on (freq, t_sky, t_box).
type Bracketed struct {
	policy DedupPolicy

	hasPrev  bool
	prevKey  bracketedKey
	prevSamp payload.Sample
}

// NewBracketed creates a Bracketed decoder with the given dedup policy.
func NewBracketed(policy DedupPolicy) *Bracketed {
	return &Bracketed{policy: policy}
}

// Decode parses text against the two bracketed-field patterns.
func (d *Bracketed) Decode(ts time.Time, text string) (payload.Sample, bool, error) {
	if strings.TrimSpace(text) == "" {
		return payload.Sample{}, false, newError("empty frame")
	}

	for _, re := range bracketedPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		b, err := parseBracketed(m)
		if err != nil {
			return payload.Sample{}, false, err
		}
		cur := payload.Sample{Timestamp: ts, Payload: payload.Payload{Kind: payload.KindBracketed, Bracketed: b}}
		key := bracketedKey{freq: b.Freq, tSky: b.TSky, tBox: b.TBox}

		switch d.policy {
		case DedupDelayed:
			return d.decodeDelayed(cur, key)
		default:
			return d.decodeImmediate(cur, key)
		}
	}
	return payload.Sample{}, false, newError("invalid bracketed frame: %q", text)
}

func parseBracketed(m []string) (payload.Bracketed, error) {
	freqRaw, err := strconv.Atoi(strings.TrimSpace(m[1]))
	if err != nil {
		return payload.Bracketed{}, newError("invalid freq field: %v", err)
	}
	tBoxRaw, err := strconv.Atoi(m[2])
	if err != nil {
		return payload.Bracketed{}, newError("invalid t_box field: %v", err)
	}
	tSkyRaw, err := strconv.Atoi(m[3])
	if err != nil {
		return payload.Bracketed{}, newError("invalid t_sky field: %v", err)
	}
	zpRaw, err := strconv.Atoi(m[4])
	if err != nil {
		return payload.Bracketed{}, newError("invalid zp field: %v", err)
	}
	return payload.Bracketed{
		Freq:          float32(freqRaw) / 1000,
		TBox:          float32(tBoxRaw) / 100,
		TSky:          float32(tSkyRaw) / 100,
		ZPPlaceholder: float32(zpRaw),
	}, nil
}

func (d *Bracketed) decodeImmediate(cur payload.Sample, key bracketedKey) (payload.Sample, bool, error) {
	if d.hasPrev && key == d.prevKey {
		d.prevSamp = cur
		return payload.Sample{}, false, nil
	}
	d.hasPrev = true
	d.prevKey = key
	d.prevSamp = cur
	return cur, true, nil
}

func (d *Bracketed) decodeDelayed(cur payload.Sample, key bracketedKey) (payload.Sample, bool, error) {
	if !d.hasPrev {
		d.hasPrev = true
		d.prevKey = key
		d.prevSamp = cur
		return payload.Sample{}, false, nil
	}
	if key == d.prevKey {
		d.prevSamp = cur
		return payload.Sample{}, false, nil
	}
	toEmit := d.prevSamp
	d.prevKey = key
	d.prevSamp = cur
	return toEmit, true, nil
}
