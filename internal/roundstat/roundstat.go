// Package roundstat provides the decimal rounding, statistical mode, and
// mode-or-median aggregation helpers the calibration engine uses to collapse
// a round's zero-point vector into a single value.
//
// gonum/stat has no mode function and this computation is a simple
// integer-bucket count, so this package is deliberately stdlib-only — see
// DESIGN.md for the full justification.
package roundstat

import (
	"math"
	"sort"

	"github.com/tessw/photocal/internal/monitoring"
)

// Round rounds x to n decimal places, half-away-from-zero.
func Round(x float64, n int) float64 {
	scale := math.Pow(10, float64(n))
	if x >= 0 {
		return math.Floor(x*scale+0.5) / scale
	}
	return math.Ceil(x*scale-0.5) / scale
}

// Mode returns the single most-frequent value in v if it is strictly more
// frequent than every other value, along with true. It returns (0, false)
// for empty input or when the maximum count is tied across two or more
// distinct values.
func Mode(v []float64) (float64, bool) {
	if len(v) == 0 {
		return 0, false
	}
	if len(v) == 1 {
		return v[0], true
	}

	counts := make(map[float64]int, len(v))
	for _, x := range v {
		counts[x]++
	}

	best := 0.0
	bestCount := 0
	ties := 0
	// Iterate in a deterministic order so ties are detected the same way
	// regardless of map iteration order.
	keys := make([]float64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	for _, k := range keys {
		c := counts[k]
		switch {
		case c > bestCount:
			best = k
			bestCount = c
			ties = 1
		case c == bestCount:
			ties++
		}
	}
	if ties != 1 {
		return 0, false
	}
	return best, true
}

// Median returns the median of v (average of the two middle elements for
// even-length input). v is not mutated.
func Median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// ModeOrMedian quantises v to `precision` decimals as integers, applies
// Mode, and returns the (rescaled) mode if one exists uniquely; otherwise it
// logs a fallback notice at the given label and returns the median of the
// original values.
func ModeOrMedian(v []float64, precision int, label string) float64 {
	scale := math.Pow(10, float64(precision))
	quantised := make([]float64, len(v))
	for i, x := range v {
		quantised[i] = math.Round(x * scale)
	}

	if m, ok := Mode(quantised); ok {
		return m / scale
	}

	monitoring.Logf("%s: no mode — falling back to median", label)
	return Median(v)
}
