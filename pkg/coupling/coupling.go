// Package coupling correlates two agents' oscillator states: convex blending
// (entanglement), resonance-weighted nonlocal pull, and message-resonance
// attraction. Every function mutates the states it is given in a fixed
// sender-first order.
package coupling

import (
	"math"
	"math/rand/v2"

	"github.com/r3d91ll/chime/pkg/evolution"
	"github.com/r3d91ll/chime/pkg/metrics"
	"github.com/r3d91ll/chime/pkg/oscillator"
	"github.com/r3d91ll/chime/pkg/phase"
)

const (
	// amplitudeCouplingRatio scales the nonlocal amplitude nudge relative to
	// the phase pull.
	amplitudeCouplingRatio = 0.1

	// correctionProbability is the per-cycle chance of a half-strength
	// phase correction in EvolveWithMessageResonance.
	correctionProbability = 0.1

	// zeroFieldRatio scales the backward quantum-field push on '0' bases.
	zeroFieldRatio = 0.25
)

// Party is the view of an agent the coupling functions need.
type Party interface {
	State() *oscillator.PhaseState
	Reference() *oscillator.PhaseState
	ApplyPhaseCorrection(target string, strength float64)
}

// Rand supplies uniform samples in [0, 1).
type Rand interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Result reports what one coupled cycle did.
type Result struct {
	Resonance float64 `json:"resonance"`
	Corrected bool    `json:"corrected"`
}

// Entangle blends every paired pulsar of a and b: each phase moves
// strength/2 of the shortest gap toward the other, and each amplitude moves
// strength/2 of the difference. At strength 1 paired pulsars become
// identical. Both states are renormalized and their composites recomputed.
// strength is clamped to [0, 1].
func Entangle(a, b *oscillator.PhaseState, strength float64) {
	if a.Empty() || b.Empty() {
		return
	}
	strength = math.Max(0, math.Min(1, strength))
	half := strength / 2

	n := min(a.Len(), b.Len())
	for i := 0; i < n; i++ {
		ba, bb := &a.Bases[i], &b.Bases[i]
		m := min(len(ba.Pulsars), len(bb.Pulsars))
		for k := 0; k < m; k++ {
			pa, pb := &ba.Pulsars[k], &bb.Pulsars[k]

			d := phase.ShortestDiff(pb.Phase, pa.Phase)
			pa.Phase = phase.Normalize(pa.Phase + half*d)
			pb.Phase = phase.Normalize(pb.Phase - half*d)

			da := pb.Amplitude - pa.Amplitude
			pa.Amplitude += half * da
			pb.Amplitude -= half * da
		}
	}

	commit(a)
	commit(b)
}

func commit(s *oscillator.PhaseState) {
	if !s.NormalizeAllAmplitudes() {
		s.RecomputeComposite()
		return
	}
	s.RecomputePhases()
}

// EvolveEntangled runs one coupled cycle in this order:
//
//  1. the sender evolves with message;
//  2. resonance is measured between the receiver (not yet evolved) and the
//     freshly evolved sender;
//  3. each receiver pulsar is pulled toward its sender pulsar by
//     NonlocalCouplingStrength·resonance, amplitudes a tenth as strongly;
//  4. the receiver evolves with no message;
//  5. with QuantumCorrelationStrength > 0, each receiver basis is rotated by
//     strength·sin(senderComposite − receiverComposite)·dt.
func EvolveEntangled(sender, receiver Party, message string, cfg evolution.Config) Result {
	s, r := sender.State(), receiver.State()
	dt := cfg.Delta

	evolution.Step(s, message, sender.Reference(), cfg)

	resonance := metrics.ResonanceStrength(r, s)

	k := cfg.NonlocalCouplingStrength * resonance
	if k != 0 && !r.Empty() {
		n := min(s.Len(), r.Len())
		for i := 0; i < n; i++ {
			sb, rb := &s.Bases[i], &r.Bases[i]
			m := min(len(sb.Pulsars), len(rb.Pulsars))
			for j := 0; j < m; j++ {
				sp, rp := sb.Pulsars[j], &rb.Pulsars[j]
				rp.Phase = phase.Normalize(rp.Phase + k*phase.ShortestDiff(sp.Phase, rp.Phase)*dt)
				rp.Amplitude += amplitudeCouplingRatio * k * (sp.Amplitude - rp.Amplitude) * dt
				rp.Amplitude = math.Max(0, rp.Amplitude)
			}
		}
		commit(r)
	}

	evolution.Step(r, "", receiver.Reference(), cfg)

	if cfg.QuantumCorrelationStrength != 0 && !r.Empty() {
		n := min(s.Len(), r.Len())
		for i := 0; i < n; i++ {
			rb := &r.Bases[i]
			pull := cfg.QuantumCorrelationStrength *
				math.Sin(phase.ShortestDiff(s.Bases[i].CompositePhase, rb.CompositePhase)) * dt
			for j := range rb.Pulsars {
				rb.Pulsars[j].Phase = phase.Normalize(rb.Pulsars[j].Phase + pull)
			}
			rb.RecomputePhase()
		}
	}

	return Result{Resonance: resonance}
}

// EvolveWithMessageResonance runs one message-resonance cycle in this order:
//
//  1. the sender evolves with message and the receiver with none;
//  2. resonance is measured between the two evolved states;
//  3. receiver pulsars are pulled toward the encoding of message by
//     MessageResonanceStrength·resonance, and with
//     SenderStabilizationStrength > 0 the sender toward its own encoding;
//  4. with QuantumFieldStrength > 0, '1' bases are pushed forward and '0'
//     bases slightly backward, scaled by max(0, cos(encoding deviation));
//  5. with probability 0.1 both parties get a half-strength phase
//     correction toward message.
//
// A nil rng uses the math/rand/v2 global source.
func EvolveWithMessageResonance(sender, receiver Party, message string, cfg evolution.Config, rng Rand) Result {
	if rng == nil {
		rng = globalRand{}
	}
	s, r := sender.State(), receiver.State()
	dt := cfg.Delta

	evolution.Step(s, message, sender.Reference(), cfg)
	evolution.Step(r, "", receiver.Reference(), cfg)

	resonance := metrics.ResonanceStrength(r, s)

	pullToward(r, receiver.Reference(), message, cfg.Epsilon, cfg.MessageResonanceStrength*resonance*dt)
	if cfg.SenderStabilizationStrength != 0 {
		pullToward(s, sender.Reference(), message, cfg.Epsilon, cfg.SenderStabilizationStrength*dt)
	}

	if cfg.QuantumFieldStrength != 0 {
		applyField(r, receiver.Reference(), message, cfg)
	}

	res := Result{Resonance: resonance}
	if rng.Float64() < correctionProbability {
		half := cfg.CorrectionStrength / 2
		sender.ApplyPhaseCorrection(message, half)
		receiver.ApplyPhaseCorrection(message, half)
		res.Corrected = true
	}
	return res
}

// pullToward moves each pulsar of state by gain·shortest(target, phase),
// where target is the encoding of message against ref.
func pullToward(state, ref *oscillator.PhaseState, message string, epsilon, gain float64) {
	if gain == 0 || state.Empty() {
		return
	}
	for i := range state.Bases {
		bit, ok := evolution.Bit(message, i)
		rb := ref.Basis(i)
		if !ok || rb == nil {
			continue
		}
		b := &state.Bases[i]
		for k := range b.Pulsars {
			target := oscillator.BitTarget(rb.ReferencePhase(k), bit, epsilon)
			b.Pulsars[k].Phase = phase.Normalize(b.Pulsars[k].Phase + gain*phase.ShortestDiff(target, b.Pulsars[k].Phase))
		}
		b.RecomputePhase()
	}
}

// applyField biases each receiver basis by its field strength: the cosine of
// the composite's deviation from its encoding target, floored at 0.
func applyField(state, ref *oscillator.PhaseState, message string, cfg evolution.Config) {
	if state.Empty() {
		return
	}
	for i := range state.Bases {
		bit, ok := evolution.Bit(message, i)
		rb := ref.Basis(i)
		if !ok || rb == nil {
			continue
		}
		b := &state.Bases[i]
		target := oscillator.BitTarget(rb.CompositePhase, bit, cfg.Epsilon)
		field := math.Max(0, math.Cos(phase.ShortestDiff(b.CompositePhase, target)))

		push := cfg.QuantumFieldStrength * field * cfg.Delta
		if bit == '0' {
			push = -zeroFieldRatio * push
		}
		for k := range b.Pulsars {
			b.Pulsars[k].Phase = phase.Normalize(b.Pulsars[k].Phase + push)
		}
		b.RecomputePhase()
	}
}
