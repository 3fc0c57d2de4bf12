// Package agent implements a communicating party: a mutable oscillator state
// paired with a reference snapshot, with encode, decode, phase correction and
// measurement built on the evolution engine and metrics.
package agent

import (
	"math"

	"go.uber.org/zap"

	"github.com/r3d91ll/chime/pkg/evolution"
	"github.com/r3d91ll/chime/pkg/metrics"
	"github.com/r3d91ll/chime/pkg/oscillator"
	"github.com/r3d91ll/chime/pkg/phase"
)

// Agent is one communicating party. The reference state is only changed by
// ResetReference.
type Agent struct {
	name      string
	role      Role
	state     *oscillator.PhaseState
	reference *oscillator.PhaseState
	cfg       evolution.Config
	logger    *zap.Logger
}

// New creates an agent whose state is seeded from primes and seeds using the
// golden-ratio phase seeding, and whose reference is a clone of that state.
func New(name string, primes []int, seeds map[int][]oscillator.Seed, cfg evolution.Config, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	state := oscillator.New(primes, seeds, phase.InitialPhase, cfg.MaxPulsarsPerPrime)
	return &Agent{
		name:      name,
		role:      RoleSender,
		state:     state,
		reference: state.Clone(),
		cfg:       cfg,
		logger:    logger.With(zap.String("agent", name)),
	}
}

// NewFromSpec validates spec and creates the agent it describes.
func NewFromSpec(spec Spec, cfg evolution.Config, logger *zap.Logger) (*Agent, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	a := New(spec.Name, spec.Primes, spec.Seeds, cfg, logger)
	a.role = spec.Role
	return a, nil
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Role returns the agent role.
func (a *Agent) Role() Role { return a.role }

// Config returns the evolution config the agent was built with.
func (a *Agent) Config() evolution.Config { return a.cfg }

// State returns the mutable state. Callers may replace it wholesale through
// the pointer.
func (a *Agent) State() *oscillator.PhaseState { return a.state }

// Reference returns the reference snapshot.
func (a *Agent) Reference() *oscillator.PhaseState { return a.reference }

// OscillatorCount is the number of prime bases, i.e. the frame width.
func (a *Agent) OscillatorCount() int { return a.state.Len() }

func (a *Agent) uninitialized(op string) bool {
	if a.state.Empty() {
		a.logger.Warn("phase state uninitialized", zap.String("op", op))
		return true
	}
	return false
}

// Encode writes bits into the state, one bit per basis starting at basis 0.
// Bits past the basis count are ignored. A positive amplitudeEpsilon also
// nudges each pulsar amplitude by ±amplitudeEpsilon/n (n pulsars in the
// basis, + for '1'), floors at 0 and renormalizes globally.
func (a *Agent) Encode(bits string, phaseEpsilon, amplitudeEpsilon float64) {
	if a.uninitialized("encode") {
		return
	}

	n := min(len(bits), a.state.Len())
	for i := 0; i < n; i++ {
		bit, ok := evolution.Bit(bits, i)
		if !ok {
			continue
		}
		a.state.ModulatePrimeBasisPhase(i, bit, phaseEpsilon, a.reference.Basis(i))
	}

	if amplitudeEpsilon <= 0 {
		return
	}
	for i := 0; i < n; i++ {
		bit, ok := evolution.Bit(bits, i)
		if !ok {
			continue
		}
		b := &a.state.Bases[i]
		if len(b.Pulsars) == 0 {
			continue
		}
		nudge := amplitudeEpsilon / float64(len(b.Pulsars))
		if bit == '0' {
			nudge = -nudge
		}
		for k := range b.Pulsars {
			b.Pulsars[k].Amplitude = math.Max(0, b.Pulsars[k].Amplitude+nudge)
		}
	}
	if !a.state.NormalizeAllAmplitudes() {
		a.logger.Debug("amplitude normalization skipped", zap.Float64("power", a.state.TotalPower()))
		a.state.RecomputeComposite()
		return
	}
	a.state.RecomputePhases()
}

// Decode reads one bit per basis by majority vote over its pulsars: a pulsar
// votes '1' when its shortest distance from the matching reference pulsar
// exceeds threshold. Ties resolve to '0'. With useAmplitude, any '1' from
// DecodeAmplitude is OR'ed in. The result has one character per basis; an
// uninitialized state decodes to "".
func (a *Agent) Decode(threshold float64, useAmplitude bool) string {
	if a.uninitialized("decode") {
		return ""
	}

	out := make([]byte, a.state.Len())
	for i := range a.state.Bases {
		b := &a.state.Bases[i]
		ref := a.reference.Basis(i)

		ones, zeros := 0, 0
		for k, p := range b.Pulsars {
			if ref == nil {
				zeros++
				continue
			}
			if math.Abs(phase.ShortestDiff(p.Phase, ref.ReferencePhase(k))) > threshold {
				ones++
			} else {
				zeros++
			}
		}
		out[i] = '0'
		if ones > zeros {
			out[i] = '1'
		}
	}

	if useAmplitude {
		amp := a.DecodeAmplitude(a.cfg.AmplitudeEpsilon)
		for i := range out {
			if i < len(amp) && amp[i] == '1' {
				out[i] = '1'
			}
		}
	}
	return string(out)
}

// DecodeAmplitude reads '1' for a basis whose composite amplitude exceeds
// the reference composite amplitude by more than amplitudeEpsilon/2.
func (a *Agent) DecodeAmplitude(amplitudeEpsilon float64) string {
	if a.uninitialized("decode_amplitude") {
		return ""
	}
	out := make([]byte, a.state.Len())
	for i := range a.state.Bases {
		out[i] = '0'
		ref := a.reference.Basis(i)
		if ref == nil {
			continue
		}
		if a.state.Bases[i].CompositeAmplitude-ref.CompositeAmplitude > amplitudeEpsilon/2 {
			out[i] = '1'
		}
	}
	return string(out)
}

// ApplyPhaseCorrection moves every pulsar of each basis covered by target a
// strength fraction of the way toward its encoding target along the
// shortest arc. strength is clamped to [0, 1].
func (a *Agent) ApplyPhaseCorrection(target string, strength float64) {
	if a.uninitialized("phase_correction") {
		return
	}
	strength = math.Max(0, math.Min(1, strength))
	if strength == 0 {
		return
	}

	for i := range a.state.Bases {
		bit, ok := evolution.Bit(target, i)
		ref := a.reference.Basis(i)
		if !ok || ref == nil {
			continue
		}
		b := &a.state.Bases[i]
		for k := range b.Pulsars {
			goal := oscillator.BitTarget(ref.ReferencePhase(k), bit, a.cfg.Epsilon)
			b.Pulsars[k].Phase = phase.Lerp(b.Pulsars[k].Phase, goal, strength)
		}
		b.RecomputePhase()
	}
}

// Evolve advances the state one step toward bits.
func (a *Agent) Evolve(bits string) bool {
	if !evolution.Step(a.state, bits, a.reference, a.cfg) {
		a.logger.Warn("phase state uninitialized", zap.String("op", "evolve"))
		return false
	}
	return true
}

// Measure returns resonance and entropy of the state against the reference.
func (a *Agent) Measure() metrics.Snapshot {
	return metrics.Measure(a.state, a.reference)
}

// Reset overwrites the state with a clone of the reference. Pointers
// returned by State stay valid.
func (a *Agent) Reset() {
	*a.state = *a.reference.Clone()
}

// ResetReference re-snapshots the reference from the current state.
func (a *Agent) ResetReference() {
	*a.reference = *a.state.Clone()
}
