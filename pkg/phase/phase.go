// Package phase provides the angle arithmetic shared by the oscillator model,
// the evolution engine and the coupling functions.
//
// All phases are radians. Stored phases live in [0, 2π); differences use the
// shortest-path convention and live in (−π, π].
package phase

import "math"

const (
	// TwoPi is a full turn.
	TwoPi = 2 * math.Pi

	// Phi is the golden ratio.
	Phi = 1.618033988749894848204586834365638117720309179805762862135

	// WeightEpsilon is the threshold below which a weight sum counts as zero.
	WeightEpsilon = 1e-9
)

// Normalize wraps p into [0, 2π).
func Normalize(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	r := math.Mod(p, TwoPi)
	if r < 0 {
		r += TwoPi
	}
	// math.Mod of a tiny negative value can land exactly on 2π.
	if r >= TwoPi {
		r = 0
	}
	return r
}

// ShortestDiff returns a − b wrapped into (−π, π].
func ShortestDiff(a, b float64) float64 {
	d := math.Mod(a-b, TwoPi)
	if d > math.Pi {
		d -= TwoPi
	} else if d <= -math.Pi {
		d += TwoPi
	}
	return d
}

// WeightedCircularMean returns the weighted circular mean of phases in
// [0, 2π). If the weights sum to ≈0 the unweighted arithmetic mean of the
// phases is returned instead. Empty input yields 0.
func WeightedCircularMean(phases, weights []float64) float64 {
	if len(phases) == 0 {
		return 0
	}

	var sumW, sinSum, cosSum float64
	for i, p := range phases {
		w := 0.0
		if i < len(weights) {
			w = weights[i]
		}
		sumW += w
		sinSum += w * math.Sin(p)
		cosSum += w * math.Cos(p)
	}

	if math.Abs(sumW) <= WeightEpsilon {
		var mean float64
		for _, p := range phases {
			mean += p
		}
		return Normalize(mean / float64(len(phases)))
	}

	return Normalize(math.Atan2(sinSum, cosSum))
}

// CircularMean is the unweighted circular mean.
func CircularMean(phases []float64) float64 {
	weights := make([]float64, len(phases))
	for i := range weights {
		weights[i] = 1
	}
	return WeightedCircularMean(phases, weights)
}

// InitialPhase seeds an oscillator phase from its frequency using the
// fractional part of frequency·φ.
func InitialPhase(frequency float64) float64 {
	_, frac := math.Modf(math.Abs(frequency) * Phi)
	return Normalize(frac * TwoPi)
}

// IdealBasisDelta is the target composite phase offset between the bases
// of primes pi and pj: ((pi−pj)/(pi+pj))·π/φ, wrapped into [0, 2π).
func IdealBasisDelta(pi, pj int) float64 {
	sum := float64(pi + pj)
	if sum == 0 {
		return 0
	}
	return Normalize((float64(pi-pj) / sum) * math.Pi / Phi)
}

// Lerp moves from toward to by fraction t along the shortest arc.
func Lerp(from, to, t float64) float64 {
	return Normalize(from + t*ShortestDiff(to, from))
}
