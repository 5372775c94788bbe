// Package numeric holds the value-snapping helpers device models use to
// quantise their readings and outputs.
package numeric

import (
	"math"
	"sort"
)

// NearestValue returns the element of sorted closest to v. Ties resolve to
// the lower index. Panics on an empty slice.
func NearestValue(sorted []float64, v float64) float64 {
	return sorted[NearestIndex(sorted, v)]
}

// NearestIndex is NearestValue returning the index instead of the value.
func NearestIndex(sorted []float64, v float64) int {
	if len(sorted) == 0 {
		panic("NearestIndex: empty value set")
	}
	i := sort.SearchFloat64s(sorted, v)
	if i == 0 {
		return 0
	}
	if i == len(sorted) {
		return len(sorted) - 1
	}
	if v-sorted[i-1] <= sorted[i]-v {
		return i - 1
	}
	return i
}

// CyclicNearestValue snaps v to the nearest element of sorted on the circle
// [lo, hi). v is wrapped into range first; distances wrap across hi→lo.
// Ties resolve to the lower index.
func CyclicNearestValue(sorted []float64, v, lo, hi float64) float64 {
	if len(sorted) == 0 {
		panic("CyclicNearestValue: empty value set")
	}
	span := hi - lo
	v = Wrap(v, lo, hi)
	best := 0
	bestDist := math.Inf(1)
	for i, s := range sorted {
		d := math.Abs(v - s)
		if span-d < d {
			d = span - d
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return sorted[best]
}

// Wrap maps v into [lo, hi).
func Wrap(v, lo, hi float64) float64 {
	span := hi - lo
	r := math.Mod(v-lo, span)
	if r < 0 {
		r += span
	}
	return lo + r
}

// EvenlySpaced returns n points spaced evenly over [lo, hi]. With cyclic set,
// the upper bound is excluded so the points tile the circle [lo, hi).
func EvenlySpaced(n int, lo, hi float64, cyclic bool) []float64 {
	if n < 1 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	div := float64(n - 1)
	if cyclic {
		div = float64(n)
	}
	step := (hi - lo) / div
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
