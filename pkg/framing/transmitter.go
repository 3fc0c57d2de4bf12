package framing

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/r3d91ll/chime/pkg/errors"
)

// Options are the encode settings used for every frame.
type Options struct {
	PhaseEpsilon     float64 `json:"phase_epsilon" yaml:"phase_epsilon"`
	AmplitudeEpsilon float64 `json:"amplitude_epsilon" yaml:"amplitude_epsilon"`
	AllowCompression bool    `json:"allow_compression" yaml:"allow_compression"`
}

// Handler runs on the receiving side after each frame has been carried.
type Handler func(ctx context.Context, receiver Endpoint) error

// Report summarizes one Send.
type Report struct {
	MessageID   int         `json:"message_id"`
	Chunks      int         `json:"chunks"`
	Sent        int         `json:"sent"`
	Skipped     int         `json:"skipped"`
	PayloadType PayloadType `json:"payload_type"`
	PayloadBits int         `json:"payload_bits"`
}

// Transmitter is the sender path. Message ids are assigned in order and
// cycle modulo MessageIDSpace.
type Transmitter struct {
	Options Options
	Carrier Carrier
	Logger  *zap.Logger

	nextID int
}

// NewTransmitter returns a transmitter using CloneCarrier when carrier is
// nil.
func NewTransmitter(opts Options, carrier Carrier, logger *zap.Logger) *Transmitter {
	if carrier == nil {
		carrier = CloneCarrier
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transmitter{Options: opts, Carrier: carrier, Logger: logger}
}

func (t *Transmitter) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}

func (t *Transmitter) carrier() Carrier {
	if t.Carrier == nil {
		return CloneCarrier
	}
	return t.Carrier
}

// Capacity is the payload width of a frame for an endpoint.
func Capacity(e Endpoint) int {
	return e.State().Len() - HeaderBits
}

// Plan splits payload bits into frames for an oscillatorCount-wide channel.
// It fails before producing any frame when capacity is not positive or more
// than MaxChunks frames would be needed. The last payload is zero padded.
func Plan(messageID int, payload string, pt PayloadType, oscillatorCount int) ([]Frame, error) {
	capacity := oscillatorCount - HeaderBits
	if capacity <= 0 {
		return nil, errors.ProtocolErrorf(errors.ErrPayloadCapacity,
			"%d oscillators leave no room for payload after the %d-bit header", oscillatorCount, HeaderBits).
			WithContextf("oscillators", oscillatorCount).
			WithSuggestion("Configure more than 15 primes")
	}

	total := (len(payload) + capacity - 1) / capacity
	if total == 0 {
		total = 1
	}
	if total > MaxChunks {
		return nil, errors.ProtocolErrorf(errors.ErrChunkCountOverflow,
			"message needs %d chunks, at most %d fit the header", total, MaxChunks).
			WithContextf("payload_bits", len(payload)).
			WithContextf("capacity", capacity).
			WithSuggestions("Shorten the message", "Configure more primes", "Enable compression")
	}

	frames := make([]Frame, 0, total)
	for seq := 0; seq < total; seq++ {
		start := seq * capacity
		end := min(start+capacity, len(payload))
		chunk := payload[start:end] + strings.Repeat("0", capacity-(end-start))

		h := Header{
			MessageID:   messageID,
			Sequence:    seq,
			Total:       total,
			IsLast:      seq == total-1,
			PayloadType: pt,
		}
		hb, err := BuildHeader(h)
		if err != nil {
			return nil, err
		}
		frames = append(frames, Frame{Header: h, Payload: chunk, Bits: hb + chunk})
	}
	return frames, nil
}

// Send fragments text, encodes each frame on sender, carries it to receiver
// and calls handler. The sender is reset to its reference after every
// frame. Empty text, capacity and chunk-count failures return before any
// frame is encoded. A frame whose length differs from the sender's
// oscillator count is skipped without aborting the message.
func (t *Transmitter) Send(ctx context.Context, text string, sender, receiver Endpoint, handler Handler) (Report, error) {
	if text == "" {
		return Report{}, errors.ProtocolError(errors.ErrEmptyMessage, "message is empty")
	}
	payload, pt := EncodeText(text, t.Options.AllowCompression)
	return t.send(ctx, payload, pt, sender, receiver, handler)
}

// SendBytes is Send for raw bytes.
func (t *Transmitter) SendBytes(ctx context.Context, data []byte, sender, receiver Endpoint, handler Handler) (Report, error) {
	if len(data) == 0 {
		return Report{}, errors.ProtocolError(errors.ErrEmptyMessage, "message is empty")
	}
	payload, err := EncodeBinary(data)
	if err != nil {
		return Report{}, err
	}
	return t.send(ctx, payload, PayloadBinary, sender, receiver, handler)
}

func (t *Transmitter) send(ctx context.Context, payload string, pt PayloadType, sender, receiver Endpoint, handler Handler) (Report, error) {
	log := t.logger()
	width := sender.State().Len()

	frames, err := Plan(t.nextID, payload, pt, width)
	if err != nil {
		if errors.IsCode(err, errors.ErrHeaderOverflow) {
			log.Error("header overflow", zap.Error(err))
		}
		return Report{}, err
	}

	report := Report{
		MessageID:   t.nextID,
		Chunks:      len(frames),
		PayloadType: pt,
		PayloadBits: len(payload),
	}
	t.nextID = (t.nextID + 1) % MessageIDSpace

	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if len(f.Bits) != width {
			log.Warn("frame length mismatch, skipping chunk",
				zap.Int("message_id", f.Header.MessageID),
				zap.Int("sequence", f.Header.Sequence),
				zap.Int("bits", len(f.Bits)),
				zap.Int("oscillators", width))
			report.Skipped++
			continue
		}

		sender.Encode(f.Bits, t.Options.PhaseEpsilon, t.Options.AmplitudeEpsilon)
		err := t.carrier().Carry(ctx, sender, receiver, f)
		if err == nil && handler != nil {
			err = handler(ctx, receiver)
		}
		*sender.State() = *sender.Reference().Clone()
		if err != nil {
			return report, err
		}

		log.Debug("chunk sent",
			zap.Int("message_id", f.Header.MessageID),
			zap.Int("sequence", f.Header.Sequence),
			zap.Int("total", f.Header.Total))
		report.Sent++
	}
	return report, nil
}
