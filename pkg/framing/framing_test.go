package framing

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/r3d91ll/chime/pkg/agent"
	"github.com/r3d91ll/chime/pkg/errors"
	"github.com/r3d91ll/chime/pkg/evolution"
)

func primesFrom(start, n int) []int {
	var out []int
	for c := start; len(out) < n; c++ {
		if c < 2 {
			continue
		}
		prime := true
		for d := 2; d*d <= c; d++ {
			if c%d == 0 {
				prime = false
				break
			}
		}
		if prime {
			out = append(out, c)
		}
	}
	return out
}

func testConfig() evolution.Config {
	cfg := evolution.DefaultConfig()
	cfg.Epsilon = 0.3
	cfg.Threshold = 0.2
	return cfg
}

func agents(n int) (*agent.Agent, *agent.Agent) {
	primes := primesFrom(1000, n)
	cfg := testConfig()
	return agent.New("alice", primes, nil, cfg, nil), agent.New("bob", primes, nil, cfg, nil)
}

// countingEndpoint records Encode calls on top of an agent.
type countingEndpoint struct {
	*agent.Agent
	encodes int
}

func (c *countingEndpoint) Encode(bits string, pe, ae float64) {
	c.encodes++
	c.Agent.Encode(bits, pe, ae)
}

func TestHeaderRoundTrip(t *testing.T) {
	types := []PayloadType{PayloadText, PayloadBrotli, PayloadBinary, PayloadReserved}
	for id := 0; id <= 15; id++ {
		for seq := 0; seq <= 15; seq++ {
			for total := 1; total <= 15; total++ {
				for _, last := range []bool{false, true} {
					for _, pt := range types {
						h := Header{MessageID: id, Sequence: seq, Total: total, IsLast: last, PayloadType: pt}
						bits, err := BuildHeader(h)
						require.NoError(t, err)
						require.Len(t, bits, HeaderBits)

						got, err := ParseHeader(bits)
						require.NoError(t, err)
						require.Equal(t, h, got)
					}
				}
			}
		}
	}
}

func TestBuildHeader_Layout(t *testing.T) {
	bits, err := BuildHeader(Header{MessageID: 5, Sequence: 2, Total: 3, IsLast: true, PayloadType: PayloadBinary})
	require.NoError(t, err)
	assert.Equal(t, "0101"+"0010"+"0011"+"1"+"10", bits)
}

func TestBuildHeader_Overflow(t *testing.T) {
	tests := []struct {
		name  string
		h     Header
		field string
	}{
		{"message id", Header{MessageID: 16, Total: 1}, "message_id"},
		{"sequence", Header{Sequence: 20, Total: 1}, "sequence"},
		{"total", Header{Total: 16}, "total"},
		{"negative", Header{Sequence: -1, Total: 1}, "sequence"},
		{"payload type", Header{Total: 1, PayloadType: 4}, "payload_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bits, err := BuildHeader(tt.h)
			require.Error(t, err)
			assert.Empty(t, bits)
			assert.True(t, errors.IsCode(err, errors.ErrHeaderOverflow))

			ce, ok := errors.AsChimeError(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, ce.Context["field"])
		})
	}
}

func TestParseHeader_Invalid(t *testing.T) {
	_, err := ParseHeader("0101")
	assert.True(t, errors.IsCode(err, errors.ErrInvalidFrame))

	_, err = ParseHeader("01010010001x110")
	assert.True(t, errors.IsCode(err, errors.ErrInvalidFrame))
}

func TestTextRoundTrip(t *testing.T) {
	for _, s := range []string{"a", "Hello, World!", "~!@#$%^&*()_+{}|:<>?", strings.Repeat("xyz", 40)} {
		bits := TextToBits(s)
		assert.Len(t, bits, 8*len(s))
		assert.Equal(t, s, BitsToText(bits, nil))
	}
	assert.Equal(t, "01000001", TextToBits("A"))
}

func TestBitsToText_EdgeCases(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	assert.Equal(t, DecodeErrorText, BitsToText("", logger))
	assert.Equal(t, DecodeErrorText, BitsToText("0100", logger))
	assert.Equal(t, "A", BitsToText("01000001"+"101", logger))
	assert.Equal(t, DecodeErrorText, BitsToText("0100000x", logger))

	assert.Equal(t, 2, logs.FilterMessage("binary truncated to whole bytes").Len())
	assert.Equal(t, 1, logs.FilterMessage("binary contains non-bit characters").Len())
}

func TestPlan_SingleChunk(t *testing.T) {
	payload := TextToBits("hi")
	require.Len(t, payload, 16)

	frames, err := Plan(3, payload, PayloadText, 32)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	f := frames[0]
	assert.True(t, f.Header.IsLast)
	assert.Equal(t, 1, f.Header.Total)
	assert.Len(t, f.Payload, 17)
	assert.Equal(t, payload+"0", f.Payload)
	assert.Len(t, f.Bits, 32)
}

func TestPlan_Limits(t *testing.T) {
	_, err := Plan(0, "1", PayloadText, 15)
	assert.True(t, errors.IsCode(err, errors.ErrPayloadCapacity))

	frames, err := Plan(0, strings.Repeat("1", 15*17), PayloadText, 32)
	require.NoError(t, err)
	assert.Len(t, frames, 15)
	for i, f := range frames {
		assert.Equal(t, i, f.Header.Sequence)
		assert.Equal(t, i == 14, f.Header.IsLast)
	}

	_, err = Plan(0, strings.Repeat("1", 15*17+1), PayloadText, 32)
	assert.True(t, errors.IsCode(err, errors.ErrChunkCountOverflow))
}

func TestSend_EndToEnd(t *testing.T) {
	sender, receiver := agents(32)
	tx := NewTransmitter(Options{PhaseEpsilon: 0.3}, nil, nil)
	rx := NewReassembler(0.2, false, nil)

	var got *Message
	report, err := tx.Send(context.Background(), "hello world", sender, receiver, rx.Handler(func(m *Message) { got = m }))
	require.NoError(t, err)

	assert.Equal(t, 0, report.MessageID)
	assert.Equal(t, 6, report.Chunks)
	assert.Equal(t, 6, report.Sent)
	assert.Equal(t, 0, report.Skipped)

	require.NotNil(t, got)
	text, err := got.Text()
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Empty(t, rx.Pending())

	// the sender is back at its reference after every chunk
	assert.Equal(t, sender.Reference(), sender.State())
}

func TestSend_Compressed(t *testing.T) {
	sender, receiver := agents(64)
	tx := NewTransmitter(Options{PhaseEpsilon: 0.3, AllowCompression: true}, CloneCarrier, nil)
	rx := NewReassembler(0.2, false, nil)

	msg := strings.Repeat("chime ", 20)
	var got *Message
	report, err := tx.Send(context.Background(), msg, sender, receiver, rx.Handler(func(m *Message) { got = m }))
	require.NoError(t, err)
	assert.Equal(t, PayloadBrotli, report.PayloadType)

	require.NotNil(t, got)
	text, err := got.Text()
	require.NoError(t, err)
	assert.Equal(t, msg, text)
}

func TestSendBytes(t *testing.T) {
	sender, receiver := agents(40)
	tx := NewTransmitter(Options{PhaseEpsilon: 0.3}, nil, nil)
	rx := NewReassembler(0.2, false, nil)

	data := []byte{0x00, 0xff, 0x10, 0x00}
	var got *Message
	_, err := tx.SendBytes(context.Background(), data, sender, receiver, rx.Handler(func(m *Message) { got = m }))
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, PayloadBinary, got.PayloadType)
	out, err := got.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestSend_OverflowRejectedBeforeAnyChunk(t *testing.T) {
	a, b := agents(32)
	sender := &countingEndpoint{Agent: a}
	tx := NewTransmitter(Options{PhaseEpsilon: 0.3}, nil, nil)

	carried := 0
	carrier := CarrierFunc(func(context.Context, Endpoint, Endpoint, Frame) error {
		carried++
		return nil
	})
	tx.Carrier = carrier

	// 15 chunks of 17 bits hold 31 whole bytes
	_, err := tx.Send(context.Background(), strings.Repeat("x", 32), sender, b, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrChunkCountOverflow))
	assert.Equal(t, 0, sender.encodes)
	assert.Equal(t, 0, carried)

	report, err := tx.Send(context.Background(), strings.Repeat("x", 31), sender, b, nil)
	require.NoError(t, err)
	assert.Equal(t, 15, report.Sent)
	assert.Equal(t, 0, report.MessageID)
}

func TestSend_Rejections(t *testing.T) {
	sender, receiver := agents(15)
	tx := NewTransmitter(Options{PhaseEpsilon: 0.3}, nil, nil)

	_, err := tx.Send(context.Background(), "", sender, receiver, nil)
	assert.True(t, errors.IsCode(err, errors.ErrEmptyMessage))

	_, err = tx.Send(context.Background(), "a", sender, receiver, nil)
	assert.True(t, errors.IsCode(err, errors.ErrPayloadCapacity))
}

func TestSend_MessageIDCycles(t *testing.T) {
	sender, receiver := agents(24)
	tx := NewTransmitter(Options{PhaseEpsilon: 0.3}, nil, nil)

	for i := 0; i < 18; i++ {
		report, err := tx.Send(context.Background(), "a", sender, receiver, nil)
		require.NoError(t, err)
		assert.Equal(t, i%16, report.MessageID)
	}
}

func TestSend_Cancelled(t *testing.T) {
	sender, receiver := agents(32)
	tx := NewTransmitter(Options{PhaseEpsilon: 0.3}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := tx.Send(ctx, "hello", sender, receiver, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Sent)
}

func TestReassembler_DuplicateChunk(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rx := NewReassembler(0.2, false, zap.New(core))

	frames, err := Plan(7, strings.Repeat("1", 40), PayloadText, 32)
	require.NoError(t, err)
	require.Len(t, frames, 3)

	for i := 0; i < 2; i++ {
		msg, err := rx.Accept(frames[1].Bits)
		require.NoError(t, err)
		assert.Nil(t, msg)
	}

	assert.Equal(t, []PendingEntry{{MessageID: 7, Received: 1, Total: 3}}, rx.Pending())
	assert.Equal(t, 1, logs.FilterMessage("duplicate chunk ignored").Len())
}

func TestReassembler_ShuffledOrder(t *testing.T) {
	rx := NewReassembler(0.2, false, nil)
	payload := TextToBits("shuffled frames")
	frames, err := Plan(2, payload, PayloadText, 32)
	require.NoError(t, err)
	require.Greater(t, len(frames), 3)

	order := []int{len(frames) - 1, 0}
	for i := len(frames) - 2; i > 0; i-- {
		order = append(order, i)
	}

	var got *Message
	for _, i := range order {
		msg, err := rx.Accept(frames[i].Bits)
		require.NoError(t, err)
		if msg != nil {
			got = msg
		}
	}

	require.NotNil(t, got)
	assert.Equal(t, 2, got.ID)
	assert.True(t, strings.HasPrefix(got.Bits, payload))
	text, err := got.Text()
	require.NoError(t, err)
	assert.Equal(t, "shuffled frames", text)
}

func TestReassembler_MissingChunk(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	rx := NewReassembler(0.2, false, zap.New(core))

	first, err := BuildHeader(Header{MessageID: 4, Sequence: 0, Total: 2, PayloadType: PayloadText})
	require.NoError(t, err)
	stray, err := BuildHeader(Header{MessageID: 4, Sequence: 5, Total: 2, IsLast: true, PayloadType: PayloadText})
	require.NoError(t, err)
	payload := strings.Repeat("0", 17)

	msg, err := rx.Accept(first + payload)
	require.NoError(t, err)
	require.Nil(t, msg)

	msg, err = rx.Accept(stray + payload)
	assert.Nil(t, msg)
	assert.True(t, errors.IsCode(err, errors.ErrMissingChunk))
	assert.Empty(t, rx.Pending())
	assert.Equal(t, 1, logs.FilterMessage("missing chunk on completion").Len())
}

func TestReassembler_IndependentMessages(t *testing.T) {
	rx := NewReassembler(0.2, false, nil)
	a, err := Plan(1, TextToBits("first message"), PayloadText, 32)
	require.NoError(t, err)
	b, err := Plan(2, TextToBits("second"), PayloadText, 32)
	require.NoError(t, err)

	// a bad frame in between must not disturb either message
	_, err = rx.Accept("111")
	require.Error(t, err)

	var done []string
	for i := 0; i < max(len(a), len(b)); i++ {
		for _, frames := range [][]Frame{a, b} {
			if i >= len(frames) {
				continue
			}
			msg, err := rx.Accept(frames[i].Bits)
			require.NoError(t, err)
			if msg != nil {
				text, err := msg.Text()
				require.NoError(t, err)
				done = append(done, text)
			}
		}
	}
	assert.ElementsMatch(t, []string{"first message", "second"}, done)
}

func TestReassembler_ZeroTotal(t *testing.T) {
	rx := NewReassembler(0.2, false, nil)
	h := "0001" + "0000" + "0000" + "1" + "00"
	_, err := rx.Accept(h + strings.Repeat("0", 17))
	assert.True(t, errors.IsCode(err, errors.ErrInvalidFrame))
	assert.Empty(t, rx.Pending())
}

func TestReassembler_ReceiveLengthMismatch(t *testing.T) {
	_, receiver := agents(32)
	rx := NewReassembler(0.2, false, nil)

	short := &shortEndpoint{Agent: receiver}
	_, err := rx.Receive(short)
	assert.True(t, errors.IsCode(err, errors.ErrChunkLengthMismatch))
}

type shortEndpoint struct{ *agent.Agent }

func (s *shortEndpoint) Decode(threshold float64, useAmplitude bool) string {
	return s.Agent.Decode(threshold, useAmplitude)[1:]
}

func TestReassembler_Evict(t *testing.T) {
	rx := NewReassembler(0.2, false, nil)
	frames, err := Plan(9, strings.Repeat("1", 40), PayloadText, 32)
	require.NoError(t, err)

	_, err = rx.Accept(frames[0].Bits)
	require.NoError(t, err)
	require.Len(t, rx.Pending(), 1)

	assert.True(t, rx.Evict(9))
	assert.False(t, rx.Evict(9))
	assert.Empty(t, rx.Pending())
}

func TestEncodeText(t *testing.T) {
	bits, pt := EncodeText("hi", true)
	assert.Equal(t, PayloadText, pt)
	assert.Equal(t, TextToBits("hi"), bits)

	long := strings.Repeat("resonance ", 30)
	bits, pt = EncodeText(long, true)
	require.Equal(t, PayloadBrotli, pt)
	assert.Less(t, len(bits), len(TextToBits(long)))

	// zero padding after the compressed stream is ignored
	out, err := DecodePayload(bits+strings.Repeat("0", 13), pt)
	require.NoError(t, err)
	assert.Equal(t, long, string(out))

	_, pt = EncodeText(long, false)
	assert.Equal(t, PayloadText, pt)
}

func TestDecodePayload_Errors(t *testing.T) {
	_, err := DecodePayload("0101", PayloadBinary)
	assert.True(t, errors.IsCode(err, errors.ErrPayloadDecode))

	_, err = DecodePayload(strings.Repeat("0", 8), PayloadReserved)
	assert.True(t, errors.IsCode(err, errors.ErrPayloadDecode))

	overclaim := pad("11", lengthPrefixBits) + TextToBits("a")
	_, err = DecodePayload(overclaim, PayloadBinary)
	assert.True(t, errors.IsCode(err, errors.ErrPayloadDecode))
}

func TestMessageText_Padding(t *testing.T) {
	m := &Message{Bits: TextToBits("ok") + strings.Repeat("0", 20), PayloadType: PayloadText}
	text, err := m.Text()
	require.NoError(t, err)
	assert.Equal(t, "ok", text)

	empty := &Message{Bits: strings.Repeat("0", 17), PayloadType: PayloadText}
	text, err = empty.Text()
	require.NoError(t, err)
	assert.Equal(t, DecodeErrorText, text)
}

// flakyEndpoint loses one bit on its first decode only.
type flakyEndpoint struct {
	*agent.Agent
	decodes int
}

func (f *flakyEndpoint) Decode(threshold float64, useAmplitude bool) string {
	f.decodes++
	bits := f.Agent.Decode(threshold, useAmplitude)
	if f.decodes == 1 {
		return bits[1:]
	}
	return bits
}

func TestSend_RejectedChunkDoesNotStopMessage(t *testing.T) {
	sender, bob := agents(32)
	receiver := &flakyEndpoint{Agent: bob}
	core, logs := observer.New(zapcore.WarnLevel)
	tx := NewTransmitter(Options{PhaseEpsilon: 0.3}, nil, nil)
	rx := NewReassembler(0.2, false, zap.New(core))

	var got *Message
	report, err := tx.Send(context.Background(), "hello world", sender, receiver, rx.Handler(func(m *Message) { got = m }))
	require.NoError(t, err)

	assert.Equal(t, 6, report.Chunks)
	assert.Equal(t, 6, report.Sent)
	assert.Equal(t, 6, receiver.decodes)
	assert.Nil(t, got)

	pending := rx.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 5, pending[0].Received)
	assert.Equal(t, 1, logs.FilterMessage("rejected chunk: decoded length mismatch").Len())
}

func TestSend_TextWithTrailingNUL(t *testing.T) {
	for _, compress := range []bool{false, true} {
		sender, receiver := agents(40)
		tx := NewTransmitter(Options{PhaseEpsilon: 0.3, AllowCompression: compress}, nil, nil)
		rx := NewReassembler(0.2, false, nil)

		msg := "end\x00\x00"
		var got *Message
		_, err := tx.Send(context.Background(), msg, sender, receiver, rx.Handler(func(m *Message) { got = m }))
		require.NoError(t, err)

		require.NotNil(t, got, "compress=%v", compress)
		assert.Equal(t, PayloadBinary, got.PayloadType)
		text, err := got.Text()
		require.NoError(t, err)
		assert.Equal(t, msg, text)
	}

	bits, pt := EncodeText("plain", false)
	assert.Equal(t, PayloadText, pt)
	assert.Equal(t, TextToBits("plain"), bits)
}
