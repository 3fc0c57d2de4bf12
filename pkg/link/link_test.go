package link

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3d91ll/chime/pkg/agent"
	"github.com/r3d91ll/chime/pkg/errors"
	"github.com/r3d91ll/chime/pkg/evolution"
	"github.com/r3d91ll/chime/pkg/oscillator"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

type recorder struct {
	mu     sync.Mutex
	cycles []CycleEvent
	frames []FrameEvent
}

func (r *recorder) ObserveCycle(ev CycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, ev)
}

func (r *recorder) ObserveFrame(ev FrameEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, ev)
}

func primes(n int) []int {
	return oscillator.PrimesFrom(1009, n)
}

// staticSeeds gives every prime one zero-frequency pulsar so drift is off.
func staticSeeds(ps []int) map[int][]oscillator.Seed {
	seeds := make(map[int][]oscillator.Seed, len(ps))
	for _, p := range ps {
		seeds[p] = []oscillator.Seed{{ID: "s"}}
	}
	return seeds
}

// calm disables every force term.
func calm() evolution.Config {
	return evolution.Config{Delta: 0.1, Epsilon: 0.3, Threshold: 0.2}
}

func newLink(t *testing.T, cfg evolution.Config, opts Options) (*Link, *recorder) {
	t.Helper()
	ps := primes(32)
	seeds := staticSeeds(ps)
	sender := agent.New("alice", ps, seeds, cfg, nil)
	receiver := agent.New("bob", ps, seeds, cfg, nil)

	rec := &recorder{}
	opts.Config = cfg
	opts.Observer = rec
	return New(sender, receiver, opts), rec
}

func TestTransmit_DirectZeroCycles(t *testing.T) {
	l, rec := newLink(t, calm(), Options{})

	out, err := l.Transmit(context.Background(), "hi there")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "hi there", out.Decoded)
	assert.Equal(t, 0, out.BitErrors)
	assert.Equal(t, 0.0, out.BitErrorRate())
	assert.Equal(t, out.Report.Chunks, len(out.Frames))
	assert.Len(t, rec.frames, out.Report.Chunks)
	assert.Empty(t, rec.cycles)
}

func TestTransmit_DirectWithAttractor(t *testing.T) {
	cfg := calm()
	cfg.Cycles = 10
	cfg.MessageAttractorForceStrength = 5000
	cfg.EnablePhaseCorrection = true
	cfg.CorrectionInterval = 4
	cfg.CorrectionStrength = 0.5

	l, rec := newLink(t, cfg, Options{Mode: ModeDirect})
	out, err := l.Transmit(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, out.Success, out.Error)

	require.Len(t, rec.cycles, out.Report.Chunks*cfg.Cycles)
	for _, ev := range rec.cycles {
		assert.Equal(t, ev.Cycle%4 == 0, ev.Corrected)
		assert.Equal(t, ModeDirect, ev.Mode)
	}
}

func TestTransmit_Entangled(t *testing.T) {
	cfg := calm()
	cfg.Cycles = 20
	cfg.NonlocalCouplingStrength = 5

	l, rec := newLink(t, cfg, Options{Mode: ModeEntangled})
	out, err := l.Transmit(context.Background(), "entangled")
	require.NoError(t, err)
	assert.True(t, out.Success, out.Error)
	assert.Equal(t, "entangled", out.Decoded)

	last := rec.cycles[len(rec.cycles)-1]
	assert.Greater(t, last.Coupling.Resonance, 0.9)
}

func TestTransmit_Resonance(t *testing.T) {
	cfg := calm()
	cfg.Cycles = 25
	cfg.MessageResonanceStrength = 5

	l, _ := newLink(t, cfg, Options{Mode: ModeResonance, Rand: fixedRand(0.5)})
	out, err := l.Transmit(context.Background(), "resonant")
	require.NoError(t, err)
	assert.True(t, out.Success, out.Error)
}

func TestTransmit_CorruptedFramesAreContained(t *testing.T) {
	ps := primes(32)
	cfg := evolution.DefaultConfig()
	cfg.Cycles = 3
	sender := agent.New("alice", ps, nil, cfg, nil)
	receiver := agent.New("bob", ps, nil, cfg, nil)
	l := New(sender, receiver, Options{Config: cfg})

	out, err := l.Transmit(context.Background(), "drift")
	require.NoError(t, err)
	assert.Greater(t, out.BitErrors, 0)
	assert.Empty(t, l.rx.Pending())
}

func TestTransmit_Rejected(t *testing.T) {
	l, rec := newLink(t, calm(), Options{})

	_, err := l.Transmit(context.Background(), "")
	assert.True(t, errors.IsCode(err, errors.ErrEmptyMessage))

	out, err := l.Transmit(context.Background(), strings.Repeat("z", 64))
	assert.True(t, errors.IsCode(err, errors.ErrChunkCountOverflow))
	assert.NotEmpty(t, out.Error)
	assert.Empty(t, rec.frames)
}

func TestTransmit_Compression(t *testing.T) {
	l, _ := newLink(t, calm(), Options{AllowCompression: true})
	msg := strings.Repeat("ab", 40)

	out, err := l.Transmit(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, msg, out.Decoded)
}

func TestThreshold(t *testing.T) {
	cfg := calm()
	cfg.AdaptiveThreshold = true
	cfg.Epsilon = 0.2
	l, _ := newLink(t, cfg, Options{})
	assert.InDelta(t, 0.1, l.Threshold(), 1e-12)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"":           ModeDirect,
		"direct":     ModeDirect,
		" Entangled": ModeEntangled,
		"RESONANCE":  ModeResonance,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("telepathy")
	assert.True(t, errors.IsCode(err, errors.ErrValidationInvalidValue))
}

func TestHamming(t *testing.T) {
	assert.Equal(t, 0, hamming("1010", "1010"))
	assert.Equal(t, 2, hamming("1010", "0110"))
	assert.Equal(t, 2, hamming("1010", "10"))
}

func TestObservers(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	obs := Observers{a, nil, b}
	obs.ObserveCycle(CycleEvent{Cycle: 1})
	obs.ObserveFrame(FrameEvent{Sequence: 2})
	assert.Len(t, a.cycles, 1)
	assert.Len(t, b.frames, 1)
}
