// Package evolution advances an oscillator state by one time step under
// natural drift, the message attractor, intra-basis coherence and
// inter-basis resonance, with global amplitude renormalization.
package evolution

import (
	"math"

	"github.com/r3d91ll/chime/pkg/oscillator"
	"github.com/r3d91ll/chime/pkg/phase"
)

// Bit returns the message bit for basis i and whether one exists. Only '0'
// and '1' count as bits.
func Bit(bits string, i int) (byte, bool) {
	if i < 0 || i >= len(bits) {
		return 0, false
	}
	b := bits[i]
	if b != '0' && b != '1' {
		return 0, false
	}
	return b, true
}

// attractorWeight is messageAttractorForceStrength / prime, 0 for a
// non-positive prime.
func attractorWeight(cfg Config, prime int) float64 {
	if prime <= 0 {
		return 0
	}
	return cfg.MessageAttractorForceStrength / float64(prime)
}

// Step advances state by cfg.Delta toward the encoding of bits relative to
// ref. bits may be empty. ref is read only. Step reports false and leaves
// state untouched when state has no bases.
func Step(state *oscillator.PhaseState, bits string, ref *oscillator.PhaseState, cfg Config) bool {
	if state.Empty() {
		return false
	}
	amplitudePass(state, bits, cfg)
	phasePass(state, bits, ref, cfg)
	return true
}

func amplitudePass(state *oscillator.PhaseState, bits string, cfg Config) {
	dt := cfg.Delta
	amps := make([][]float64, len(state.Bases))
	for i := range state.Bases {
		b := &state.Bases[i]
		row := make([]float64, len(b.Pulsars))
		bit, ok := Bit(bits, i)
		coupling := cfg.AmplitudeCouplingStrength * attractorWeight(cfg, b.Prime)
		for k, p := range b.Pulsars {
			row[k] = p.Amplitude
			if !ok {
				continue
			}
			alignment := math.Sin(p.Phase)
			if bit == '1' {
				alignment = -alignment
			}
			row[k] *= math.Exp(alignment * coupling * dt)
		}
		amps[i] = row
	}

	oscillator.NormalizeAmplitudes(amps)

	for i := range state.Bases {
		b := &state.Bases[i]
		for k := range b.Pulsars {
			b.Pulsars[k].Amplitude = amps[i][k]
		}
		b.RecomputeAmplitude()
	}
}

func phasePass(state *oscillator.PhaseState, bits string, ref *oscillator.PhaseState, cfg Config) {
	dt := cfg.Delta
	n := len(state.Bases)

	composites := make([]float64, n)
	for i := range state.Bases {
		composites[i] = state.Bases[i].CompositePhase
	}

	tendency := make([]float64, n)
	if cfg.InterBasisResonanceStrength != 0 {
		for i := 0; i < n; i++ {
			var sum float64
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				actual := phase.ShortestDiff(composites[i], composites[j])
				ideal := phase.IdealBasisDelta(state.Bases[i].Prime, state.Bases[j].Prime)
				sum += math.Sin(actual - ideal)
			}
			tendency[i] = -dt * cfg.InterBasisResonanceStrength * sum
		}
	}

	deltas := make([][]float64, n)
	for i := range state.Bases {
		b := &state.Bases[i]
		bit, hasBit := Bit(bits, i)
		refBasis := ref.Basis(i)
		weight := attractorWeight(cfg, b.Prime)
		coherenceTarget := composites[i] + tendency[i]

		row := make([]float64, len(b.Pulsars))
		for k, p := range b.Pulsars {
			d := p.Frequency * dt

			if hasBit && refBasis != nil && k < len(refBasis.Pulsars) {
				target := oscillator.BitTarget(refBasis.Pulsars[k].Phase, bit, cfg.Epsilon)
				d += weight * phase.ShortestDiff(target, p.Phase) * dt
			}

			d += cfg.IntraBasisCoherenceStrength * dt * phase.ShortestDiff(coherenceTarget, p.Phase)
			row[k] = d
		}
		deltas[i] = row
	}

	for i := range state.Bases {
		b := &state.Bases[i]
		for k := range b.Pulsars {
			b.Pulsars[k].Phase = phase.Normalize(b.Pulsars[k].Phase + deltas[i][k])
		}
		b.RecomputePhase()
	}
}
