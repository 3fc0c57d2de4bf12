package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/r3d91ll/chime/pkg/errors"
	"github.com/r3d91ll/chime/pkg/evolution"
	"github.com/r3d91ll/chime/pkg/oscillator"
	"github.com/r3d91ll/chime/pkg/phase"
)

var transferPrimes = []int{1021, 1171, 1307, 1483}

func transferConfig() evolution.Config {
	cfg := evolution.DefaultConfig()
	cfg.Epsilon = 0.3
	cfg.Threshold = 0.2
	return cfg
}

func handOver(sender, receiver *Agent) {
	*receiver.State() = *sender.State().Clone()
	*receiver.Reference() = *sender.Reference().Clone()
}

func TestZeroEvolutionTransfer(t *testing.T) {
	cfg := transferConfig()
	sender := New("alice", transferPrimes, nil, cfg, nil)
	receiver := New("bob", transferPrimes, nil, cfg, nil)

	sender.Encode("1010", cfg.Epsilon, 0)
	assert.Equal(t, "1010", sender.Decode(cfg.Threshold, false))

	handOver(sender, receiver)
	assert.Equal(t, "1010", receiver.Decode(cfg.Threshold, false))
}

func TestZeroEvolutionTransfer_MultiplePulsars(t *testing.T) {
	cfg := transferConfig()
	seeds := map[int][]oscillator.Seed{
		1021: {{ID: "p1", Frequency: 0.71}, {ID: "p2", Frequency: 1.33}, {ID: "p3", Frequency: 29.9}},
		1307: {{ID: "p4", Frequency: 2.2}, {ID: "p5", Frequency: 0.4}},
	}
	sender := New("alice", transferPrimes, seeds, cfg, nil)
	require.Equal(t, 7, sender.State().PulsarCount())

	sender.Encode("0110", cfg.Epsilon, 0)
	assert.Equal(t, "0110", sender.Decode(cfg.Threshold, false))
}

func TestEncode_LeavesReferenceUntouched(t *testing.T) {
	cfg := transferConfig()
	a := New("alice", transferPrimes, nil, cfg, nil)
	before := a.Reference().Clone()

	a.Encode("1111", cfg.Epsilon, 0.1)
	a.Evolve("1111")
	a.ApplyPhaseCorrection("1111", 0.5)

	assert.Equal(t, before, a.Reference())
}

func TestEncode_PartialAndExtraBits(t *testing.T) {
	cfg := transferConfig()

	short := New("alice", transferPrimes, nil, cfg, nil)
	short.Encode("1", cfg.Epsilon, 0)
	assert.Equal(t, "1000", short.Decode(cfg.Threshold, false))

	long := New("alice", transferPrimes, nil, cfg, nil)
	long.Encode("0101111", cfg.Epsilon, 0)
	assert.Equal(t, "0101", long.Decode(cfg.Threshold, false))
}

func TestDecode_TieResolvesToZero(t *testing.T) {
	cfg := transferConfig()
	seeds := map[int][]oscillator.Seed{2: {{ID: "a", Frequency: 1}, {ID: "b", Frequency: 2}}}
	a := New("alice", []int{2}, seeds, cfg, nil)

	p := &a.State().Bases[0].Pulsars[0]
	p.Phase = phase.Normalize(p.Phase + 1)
	a.State().RecomputePhases()

	assert.Equal(t, "0", a.Decode(cfg.Threshold, false))

	q := &a.State().Bases[0].Pulsars[1]
	q.Phase = phase.Normalize(q.Phase - 1)
	assert.Equal(t, "1", a.Decode(cfg.Threshold, false))
}

func TestDecodeAmplitude(t *testing.T) {
	cfg := transferConfig()
	cfg.AmplitudeEpsilon = 0.2
	a := New("alice", transferPrimes, nil, cfg, nil)

	a.Encode("1000", 0, cfg.AmplitudeEpsilon)

	assert.InDelta(t, 1.0, a.State().TotalPower(), 1e-9)
	assert.Equal(t, "1000", a.DecodeAmplitude(cfg.AmplitudeEpsilon))
	assert.Equal(t, "0000", a.Decode(cfg.Threshold, false))
	assert.Equal(t, "1000", a.Decode(cfg.Threshold, true))
}

func TestDecode_AmplitudeNeverClearsPhaseBit(t *testing.T) {
	cfg := transferConfig()
	cfg.AmplitudeEpsilon = 0.2
	a := New("alice", transferPrimes, nil, cfg, nil)

	a.Encode("0100", cfg.Epsilon, 0)
	assert.Equal(t, "0000", a.DecodeAmplitude(cfg.AmplitudeEpsilon))
	assert.Equal(t, "0100", a.Decode(cfg.Threshold, true))
}

func TestApplyPhaseCorrection(t *testing.T) {
	cfg := transferConfig()

	full := New("alice", transferPrimes, nil, cfg, nil)
	full.ApplyPhaseCorrection("1010", 1)
	assert.Equal(t, "1010", full.Decode(cfg.Threshold, false))

	half := New("alice", transferPrimes, nil, cfg, nil)
	half.ApplyPhaseCorrection("1010", 0.5)
	for i, b := range half.State().Bases {
		d := phase.ShortestDiff(b.Pulsars[0].Phase, half.Reference().Bases[i].Pulsars[0].Phase)
		want := 0.0
		if i%2 == 0 {
			want = 0.15
		}
		assert.InDelta(t, want, d, 1e-9)
	}

	// the target message is explicit: correcting toward another message
	// pulls the encoded one back
	full.ApplyPhaseCorrection("0000", 1)
	assert.Equal(t, "0000", full.Decode(cfg.Threshold, false))
}

func TestReset(t *testing.T) {
	cfg := transferConfig()
	a := New("alice", transferPrimes, nil, cfg, nil)
	st := a.State()

	a.Encode("1111", cfg.Epsilon, 0)
	require.Equal(t, "1111", a.Decode(cfg.Threshold, false))

	a.Reset()
	assert.Same(t, st, a.State())
	assert.Equal(t, "0000", a.Decode(cfg.Threshold, false))
	assert.Equal(t, a.Reference(), a.State())

	a.State().Bases[0].Pulsars[0].Phase = 0
	assert.NotEqual(t, a.Reference().Bases[0].Pulsars[0].Phase, 0.0)
}

func TestResetReference(t *testing.T) {
	cfg := transferConfig()
	a := New("alice", transferPrimes, nil, cfg, nil)

	a.Encode("1100", cfg.Epsilon, 0)
	a.ResetReference()
	assert.Equal(t, "0000", a.Decode(cfg.Threshold, false))
}

func TestMeasure(t *testing.T) {
	cfg := transferConfig()
	a := New("alice", transferPrimes, nil, cfg, nil)

	m := a.Measure()
	assert.InDelta(t, 1.0, m.Resonance, 1e-9)
	assert.InDelta(t, 2.0, m.Entropy, 1e-9)

	a.Encode("1111", cfg.Epsilon, 0)
	assert.Less(t, a.Measure().Resonance, 1.0)
}

func TestUninitializedState(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	a := New("empty", nil, nil, transferConfig(), zap.New(core))

	a.Encode("1010", 0.3, 0.1)
	assert.Equal(t, "", a.Decode(0.2, true))
	assert.False(t, a.Evolve("1010"))
	a.ApplyPhaseCorrection("1010", 1)

	m := a.Measure()
	assert.Equal(t, 0.0, m.Resonance)
	assert.Equal(t, 0.0, m.Entropy)
	assert.Equal(t, 0, a.OscillatorCount())

	entries := logs.FilterMessage("phase state uninitialized").All()
	require.Len(t, entries, 4)
	assert.Equal(t, "encode", entries[0].ContextMap()["op"])
	assert.Equal(t, "empty", entries[0].ContextMap()["agent"])
}

func TestNewFromSpec(t *testing.T) {
	a, err := NewFromSpec(DefaultReceiver(transferPrimes), transferConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, "bob", a.Name())
	assert.Equal(t, RoleReceiver, a.Role())
	assert.Equal(t, 4, a.OscillatorCount())

	tests := []struct {
		name string
		spec Spec
		code string
	}{
		{"missing name", Spec{Role: RoleSender, Primes: transferPrimes}, errors.ErrValidationRequired},
		{"bad role", Spec{Name: "x", Role: "pilot", Primes: transferPrimes}, errors.ErrValidationInvalidValue},
		{"no primes", Spec{Name: "x", Role: RoleSender}, errors.ErrValidationRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFromSpec(tt.spec, transferConfig(), nil)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code))
		})
	}
}

func TestRole(t *testing.T) {
	assert.True(t, RoleSender.CanEncode())
	assert.False(t, RoleReceiver.CanEncode())
	assert.True(t, RoleReceiver.CanDecode())
	assert.False(t, RoleObserver.CanDecode())
	assert.False(t, Role("x").IsValid())
	assert.Equal(t, "Unknown role", Role("x").Description())
}
