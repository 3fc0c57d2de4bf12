// Package link runs transmissions between two agents: it frames text, runs
// the configured coupling cycles for every frame, and reassembles what the
// receiver decodes.
package link

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/r3d91ll/chime/pkg/agent"
	"github.com/r3d91ll/chime/pkg/coupling"
	"github.com/r3d91ll/chime/pkg/errors"
	"github.com/r3d91ll/chime/pkg/evolution"
	"github.com/r3d91ll/chime/pkg/framing"
	"github.com/r3d91ll/chime/pkg/metrics"
)

// Mode selects how a frame travels from sender to receiver.
type Mode string

const (
	// ModeDirect evolves the sender alone, then hands its state over.
	ModeDirect Mode = "direct"
	// ModeEntangled runs EvolveEntangled cycles; the receiver decodes its
	// own coupled state.
	ModeEntangled Mode = "entangled"
	// ModeResonance runs EvolveWithMessageResonance cycles; the receiver
	// decodes its own coupled state.
	ModeResonance Mode = "resonance"
)

// ParseMode parses a coupling mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDirect, ModeEntangled, ModeResonance:
		return m, nil
	case "":
		return ModeDirect, nil
	default:
		return "", errors.ValidationErrorf(errors.ErrValidationInvalidValue, "unknown coupling mode %q", s).
			WithContext("field", "coupling_mode").
			WithSuggestion("Use one of: direct, entangled, resonance")
	}
}

// Options configure a Link.
type Options struct {
	Config           evolution.Config
	Mode             Mode
	EntangleStrength float64
	AllowCompression bool
	Rand             coupling.Rand
	Observer         Observer
	Logger           *zap.Logger
}

// Link connects a sender and a receiver agent.
type Link struct {
	Sender   *agent.Agent
	Receiver *agent.Agent

	opts Options
	log  *zap.Logger
	tx   *framing.Transmitter
	rx   *framing.Reassembler

	current framing.Frame
	frames  []FrameEvent
}

// New builds a link. A zero Mode means ModeDirect.
func New(sender, receiver *agent.Agent, opts Options) *Link {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Mode == "" {
		opts.Mode = ModeDirect
	}

	l := &Link{
		Sender:   sender,
		Receiver: receiver,
		opts:     opts,
		log:      opts.Logger.With(zap.String("mode", string(opts.Mode))),
	}
	l.tx = framing.NewTransmitter(framing.Options{
		PhaseEpsilon:     opts.Config.Epsilon,
		AmplitudeEpsilon: l.amplitudeEpsilon(),
		AllowCompression: opts.AllowCompression,
	}, l, l.log)
	l.rx = framing.NewReassembler(l.Threshold(), opts.Config.UseAmplitudeModulation, l.log)
	return l
}

// Mode returns the coupling mode.
func (l *Link) Mode() Mode { return l.opts.Mode }

// Config returns the evolution config.
func (l *Link) Config() evolution.Config { return l.opts.Config }

// Threshold is the decode threshold in use.
func (l *Link) Threshold() float64 {
	return l.opts.Config.EffectiveThreshold()
}

func (l *Link) amplitudeEpsilon() float64 {
	if !l.opts.Config.UseAmplitudeModulation {
		return 0
	}
	return l.opts.Config.AmplitudeEpsilon
}

// Carry implements framing.Carrier. With zero cycles every mode is a plain
// hand-over of the encoded state.
func (l *Link) Carry(ctx context.Context, sender, receiver framing.Endpoint, frame framing.Frame) error {
	l.current = frame
	cfg := l.opts.Config

	s, sok := sender.(coupling.Party)
	r, rok := receiver.(coupling.Party)
	if cfg.Cycles <= 0 || !sok || !rok {
		framing.HandOver(sender, receiver)
		return nil
	}

	switch l.opts.Mode {
	case ModeEntangled, ModeResonance:
		l.syncBaseline(sender, receiver)
		if l.opts.EntangleStrength > 0 {
			coupling.Entangle(sender.State(), receiver.State(), l.opts.EntangleStrength)
		}
	}

	for c := 1; c <= cfg.Cycles; c++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var res coupling.Result
		switch l.opts.Mode {
		case ModeEntangled:
			res = coupling.EvolveEntangled(s, r, frame.Bits, cfg)
		case ModeResonance:
			res = coupling.EvolveWithMessageResonance(s, r, frame.Bits, cfg, l.opts.Rand)
		default:
			evolution.Step(sender.State(), frame.Bits, sender.Reference(), cfg)
		}

		corrected := res.Corrected
		if cfg.CorrectionDue(c) {
			s.ApplyPhaseCorrection(frame.Bits, cfg.CorrectionStrength)
			if l.opts.Mode != ModeDirect {
				r.ApplyPhaseCorrection(frame.Bits, cfg.CorrectionStrength)
			}
			corrected = true
		}

		l.opts.Observer.ObserveCycle(CycleEvent{
			MessageID: frame.Header.MessageID,
			Sequence:  frame.Header.Sequence,
			Cycle:     c,
			Mode:      l.opts.Mode,
			Sender:    measure(sender),
			Receiver:  measure(receiver),
			Coupling:  res,
			Corrected: corrected,
		})
	}

	if l.opts.Mode == ModeDirect {
		framing.HandOver(sender, receiver)
	}
	return nil
}

// syncBaseline gives the receiver the sender's reference as both reference
// and starting state.
func (l *Link) syncBaseline(sender, receiver framing.Endpoint) {
	*receiver.Reference() = *sender.Reference().Clone()
	*receiver.State() = *sender.Reference().Clone()
}

// Outcome is the result of one Transmit.
type Outcome struct {
	Text      string         `json:"text"`
	Decoded   string         `json:"decoded"`
	Success   bool           `json:"success"`
	BitErrors int            `json:"bit_errors"`
	FrameBits int            `json:"frame_bits"`
	Report    framing.Report `json:"report"`
	Frames    []FrameEvent   `json:"frames"`
	Error     string         `json:"error,omitempty"`
}

// BitErrorRate is BitErrors over all frame bits sent.
func (o Outcome) BitErrorRate() float64 {
	if o.FrameBits == 0 {
		return 0
	}
	return float64(o.BitErrors) / float64(o.FrameBits)
}

// Transmit sends text from Sender to Receiver and returns what the receiver
// reassembled. Chunk-level failures on the receiving side are recorded in
// the outcome, not returned; incomplete messages are evicted afterwards.
func (l *Link) Transmit(ctx context.Context, text string) (Outcome, error) {
	l.frames = nil
	out := Outcome{Text: text}

	var got *framing.Message
	handler := func(_ context.Context, receiver framing.Endpoint) error {
		ev := FrameEvent{
			MessageID: l.current.Header.MessageID,
			Sequence:  l.current.Header.Sequence,
			Total:     l.current.Header.Total,
			Sent:      l.current.Bits,
			Received:  receiver.Decode(l.rx.Threshold, l.rx.UseAmplitude),
		}
		ev.BitErrors = hamming(ev.Sent, ev.Received)

		msg, err := l.rx.Receive(receiver)
		if err != nil {
			ev.Error = err.Error()
			l.log.Warn("frame rejected",
				zap.Int("message_id", ev.MessageID),
				zap.Int("sequence", ev.Sequence),
				zap.Error(err))
		}
		if msg != nil {
			got = msg
		}
		l.frames = append(l.frames, ev)
		l.opts.Observer.ObserveFrame(ev)
		return nil
	}

	report, err := l.tx.Send(ctx, text, l.Sender, l.Receiver, handler)
	out.Report = report
	out.Frames = l.frames
	for _, f := range l.frames {
		out.BitErrors += f.BitErrors
		out.FrameBits += len(f.Sent)
	}
	l.evictPending()
	if err != nil {
		out.Error = err.Error()
		return out, err
	}

	if got == nil {
		out.Error = fmt.Sprintf("message %d was not reassembled", report.MessageID)
		return out, nil
	}
	decoded, derr := got.Text()
	out.Decoded = decoded
	if derr != nil {
		out.Error = derr.Error()
	}
	out.Success = derr == nil && decoded == text
	return out, nil
}

func (l *Link) evictPending() {
	for _, p := range l.rx.Pending() {
		l.log.Warn("abandoning incomplete message",
			zap.Int("message_id", p.MessageID),
			zap.Int("received", p.Received),
			zap.Int("total", p.Total))
		l.rx.Evict(p.MessageID)
	}
}

// Reset returns both agents to their references.
func (l *Link) Reset() {
	l.Sender.Reset()
	l.Receiver.Reset()
}

func hamming(a, b string) int {
	n := 0
	for i := 0; i < max(len(a), len(b)); i++ {
		if i >= len(a) || i >= len(b) || a[i] != b[i] {
			n++
		}
	}
	return n
}

func measure(e framing.Endpoint) metrics.Snapshot {
	return metrics.Measure(e.State(), e.Reference())
}
