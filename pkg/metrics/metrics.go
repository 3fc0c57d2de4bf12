// Package metrics computes read-only measurements over oscillator states.
package metrics

import (
	"math"

	"github.com/r3d91ll/chime/pkg/oscillator"
	"github.com/r3d91ll/chime/pkg/phase"
)

// ProbabilityEpsilon excludes near-zero probabilities from the entropy sum.
const ProbabilityEpsilon = 1e-9

// Snapshot is one measurement of a state against its reference.
type Snapshot struct {
	Resonance float64 `json:"resonance"`
	Entropy   float64 `json:"entropy"`
	Coherence float64 `json:"coherence"`
}

// Measure returns resonance and entropy of state against ref, plus the
// state's phase coherence.
func Measure(state, ref *oscillator.PhaseState) Snapshot {
	return Snapshot{
		Resonance: ResonanceStrength(state, ref),
		Entropy:   Entropy(state),
		Coherence: PhaseCoherence(state),
	}
}

// ResonanceStrength is the mean closeness 1 − |Δ|/π of composite phases over
// bases whose pulsar counts match and are non-zero. It is 0 when either
// state is empty, the basis counts differ, or no basis could be compared.
func ResonanceStrength(state, ref *oscillator.PhaseState) float64 {
	if state.Empty() || ref.Empty() || state.Len() != ref.Len() {
		return 0
	}

	var total float64
	compared := 0
	for i := range state.Bases {
		a, b := &state.Bases[i], &ref.Bases[i]
		if len(a.Pulsars) == 0 || len(a.Pulsars) != len(b.Pulsars) {
			continue
		}
		d := math.Abs(phase.ShortestDiff(a.CompositePhase, b.CompositePhase))
		total += 1 - d/math.Pi
		compared++
	}
	if compared == 0 {
		return 0
	}
	return total / float64(compared)
}

// Entropy is the base-2 Shannon entropy of the squared composite amplitudes.
func Entropy(state *oscillator.PhaseState) float64 {
	if state.Empty() {
		return 0
	}
	var h float64
	for i := range state.Bases {
		a := state.Bases[i].CompositeAmplitude
		p := a * a
		if p <= ProbabilityEpsilon {
			continue
		}
		h -= p * math.Log2(p)
	}
	return h
}

// PhaseCoherence maps the circular variance V of the composite phases onto
// [0, 1] through an exponential decay: 1 when all composites agree, 0 when
// they cancel. States with fewer than two bases are fully coherent.
func PhaseCoherence(state *oscillator.PhaseState) float64 {
	if state.Len() < 2 {
		return 1
	}
	var sinSum, cosSum float64
	for i := range state.Bases {
		p := state.Bases[i].CompositePhase
		sinSum += math.Sin(p)
		cosSum += math.Cos(p)
	}
	n := float64(state.Len())
	r := math.Hypot(sinSum, cosSum) / n
	v := 1 - r
	c := 1 - (1-math.Exp(-v))/(1-math.Exp(-1))
	return math.Max(0, math.Min(1, c))
}
