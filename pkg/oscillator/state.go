// Package oscillator holds the phase/amplitude state model: prime-indexed
// groups of pulsar oscillators whose composite phases carry message bits.
package oscillator

import (
	"math"
	"strconv"

	"github.com/r3d91ll/chime/pkg/phase"
)

// NormEpsilon guards amplitude renormalization: a sum of squares at or below
// this value leaves amplitudes unchanged.
const NormEpsilon = 1e-9

// Pulsar is one oscillator contributing to a prime basis.
type Pulsar struct {
	ID        string  `json:"id" yaml:"id"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
	Phase     float64 `json:"phase" yaml:"phase"`
	Amplitude float64 `json:"amplitude" yaml:"amplitude"`
}

// PrimeBasis groups the pulsars associated with one prime. The composite
// fields are derived from the pulsars and recomputed after every mutation.
type PrimeBasis struct {
	Prime              int      `json:"prime"`
	Pulsars            []Pulsar `json:"pulsars"`
	CompositePhase     float64  `json:"composite_phase"`
	CompositeAmplitude float64  `json:"composite_amplitude"`
}

// PhaseState is the full oscillator graph of one agent.
type PhaseState struct {
	Bases []PrimeBasis `json:"bases"`
}

// Seed is caller-supplied oscillator data for one prime.
type Seed struct {
	ID        string  `json:"id" yaml:"id"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
}

// SeedFunc maps an oscillator frequency to its initial phase.
type SeedFunc func(frequency float64) float64

// New builds a state with one basis per prime, in order.
//
// Each basis starts with composite amplitude 1/√len(primes); each of its n
// pulsars gets amplitude basisAmplitude/√n and phase seedFn(frequency). A
// prime with no seeds gets one synthetic pulsar whose frequency is the prime.
// maxPerPrime > 0 caps the pulsars kept per prime.
func New(primes []int, seeds map[int][]Seed, seedFn SeedFunc, maxPerPrime int) *PhaseState {
	if seedFn == nil {
		seedFn = phase.InitialPhase
	}
	s := &PhaseState{Bases: make([]PrimeBasis, 0, len(primes))}
	if len(primes) == 0 {
		return s
	}

	basisAmplitude := 1 / math.Sqrt(float64(len(primes)))

	for _, p := range primes {
		src := seeds[p]
		if maxPerPrime > 0 && len(src) > maxPerPrime {
			src = src[:maxPerPrime]
		}
		if len(src) == 0 {
			src = []Seed{{ID: "synthetic-" + strconv.Itoa(p), Frequency: float64(p)}}
		}

		pulsarAmplitude := basisAmplitude / math.Sqrt(float64(len(src)))
		pulsars := make([]Pulsar, len(src))
		for i, sd := range src {
			pulsars[i] = Pulsar{
				ID:        sd.ID,
				Frequency: sd.Frequency,
				Phase:     phase.Normalize(seedFn(sd.Frequency)),
				Amplitude: pulsarAmplitude,
			}
		}

		b := PrimeBasis{
			Prime:              p,
			Pulsars:            pulsars,
			CompositeAmplitude: basisAmplitude,
		}
		b.RecomputePhase()
		s.Bases = append(s.Bases, b)
	}

	return s
}

// Empty reports whether the state has no bases (or is nil).
func (s *PhaseState) Empty() bool {
	return s == nil || len(s.Bases) == 0
}

// Len returns the number of bases, which is the oscillator-count capacity
// used for framing.
func (s *PhaseState) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bases)
}

// PulsarCount returns the total number of pulsars across all bases.
func (s *PhaseState) PulsarCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for i := range s.Bases {
		n += len(s.Bases[i].Pulsars)
	}
	return n
}

// Primes returns the configured primes in basis order.
func (s *PhaseState) Primes() []int {
	if s == nil {
		return nil
	}
	out := make([]int, len(s.Bases))
	for i := range s.Bases {
		out[i] = s.Bases[i].Prime
	}
	return out
}

// Basis returns a pointer to basis i, or nil when out of range.
func (s *PhaseState) Basis(i int) *PrimeBasis {
	if s == nil || i < 0 || i >= len(s.Bases) {
		return nil
	}
	return &s.Bases[i]
}

// Clone returns a fully independent deep copy.
func (s *PhaseState) Clone() *PhaseState {
	if s == nil {
		return nil
	}
	c := &PhaseState{Bases: make([]PrimeBasis, len(s.Bases))}
	for i, b := range s.Bases {
		c.Bases[i] = b.Clone()
	}
	return c
}

// Clone returns a deep copy of the basis.
func (b PrimeBasis) Clone() PrimeBasis {
	pulsars := make([]Pulsar, len(b.Pulsars))
	copy(pulsars, b.Pulsars)
	b.Pulsars = pulsars
	return b
}

// ModulatePrimeBasisPhase writes one bit into basis i: every pulsar's phase
// becomes its reference phase (bit '0') or reference phase + epsilon (bit
// '1'), then the composite phase is recomputed. The reference phase of a
// pulsar is the reference pulsar at the same index, or the reference
// composite phase when the reference basis has fewer pulsars. Absent basis
// or reference is a no-op.
func (s *PhaseState) ModulatePrimeBasisPhase(i int, bit byte, epsilon float64, ref *PrimeBasis) {
	b := s.Basis(i)
	if b == nil || ref == nil {
		return
	}
	for k := range b.Pulsars {
		b.Pulsars[k].Phase = BitTarget(ref.ReferencePhase(k), bit, epsilon)
	}
	b.RecomputePhase()
}

// BitTarget is the phase that encodes bit relative to a reference phase.
func BitTarget(referencePhase float64, bit byte, epsilon float64) float64 {
	if bit == '1' {
		return phase.Normalize(referencePhase + epsilon)
	}
	return phase.Normalize(referencePhase)
}

// ReferencePhase returns pulsar k's phase, falling back to the composite
// phase when k is out of range.
func (b *PrimeBasis) ReferencePhase(k int) float64 {
	if k >= 0 && k < len(b.Pulsars) {
		return b.Pulsars[k].Phase
	}
	return b.CompositePhase
}

// RecomputePhase sets the composite phase to the amplitude-weighted circular
// mean of the pulsar phases.
func (b *PrimeBasis) RecomputePhase() {
	if len(b.Pulsars) == 0 {
		return
	}
	phases := make([]float64, len(b.Pulsars))
	weights := make([]float64, len(b.Pulsars))
	for i, p := range b.Pulsars {
		phases[i] = p.Phase
		weights[i] = p.Amplitude
	}
	b.CompositePhase = phase.WeightedCircularMean(phases, weights)
}

// RecomputeAmplitude sets the composite amplitude to the Euclidean norm of
// the pulsar amplitudes.
func (b *PrimeBasis) RecomputeAmplitude() {
	var sumSq float64
	for _, p := range b.Pulsars {
		sumSq += p.Amplitude * p.Amplitude
	}
	b.CompositeAmplitude = math.Sqrt(sumSq)
}

// RecomputeComposite refreshes both composite fields of every basis.
func (s *PhaseState) RecomputeComposite() {
	if s == nil {
		return
	}
	for i := range s.Bases {
		s.Bases[i].RecomputeAmplitude()
		s.Bases[i].RecomputePhase()
	}
}

// RecomputePhases refreshes the composite phase of every basis.
func (s *PhaseState) RecomputePhases() {
	if s == nil {
		return
	}
	for i := range s.Bases {
		s.Bases[i].RecomputePhase()
	}
}

// TotalPower returns the sum of squared amplitudes over all pulsars.
func (s *PhaseState) TotalPower() float64 {
	if s == nil {
		return 0
	}
	var sumSq float64
	for i := range s.Bases {
		for _, p := range s.Bases[i].Pulsars {
			sumSq += p.Amplitude * p.Amplitude
		}
	}
	return sumSq
}

// NormalizeAllAmplitudes rescales every pulsar amplitude so the sum of
// squares over the whole state is 1, then recomputes composite amplitudes.
// It reports false and leaves amplitudes untouched when the sum of squares
// is at or below NormEpsilon.
func (s *PhaseState) NormalizeAllAmplitudes() bool {
	if s.Empty() {
		return false
	}
	sumSq := s.TotalPower()
	if sumSq <= NormEpsilon {
		return false
	}
	norm := math.Sqrt(sumSq)
	for i := range s.Bases {
		b := &s.Bases[i]
		for k := range b.Pulsars {
			b.Pulsars[k].Amplitude /= norm
		}
		b.RecomputeAmplitude()
	}
	return true
}

// NormalizeAmplitudes is the slice form of NormalizeAllAmplitudes used on
// scratch copies before they are committed.
func NormalizeAmplitudes(amps [][]float64) bool {
	var sumSq float64
	for _, row := range amps {
		for _, a := range row {
			sumSq += a * a
		}
	}
	if sumSq <= NormEpsilon {
		return false
	}
	norm := math.Sqrt(sumSq)
	for _, row := range amps {
		for k := range row {
			row[k] /= norm
		}
	}
	return true
}

// SameShape reports whether two states have the same number of bases and
// the same pulsar count in every basis.
func SameShape(a, b *PhaseState) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.Bases {
		if len(a.Bases[i].Pulsars) != len(b.Bases[i].Pulsars) {
			return false
		}
	}
	return true
}
