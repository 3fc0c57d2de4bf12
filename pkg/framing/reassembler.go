package framing

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/r3d91ll/chime/pkg/errors"
)

// Message is a fully reassembled payload.
type Message struct {
	ID          int         `json:"id"`
	Bits        string      `json:"bits"`
	PayloadType PayloadType `json:"payload_type"`
	Chunks      int         `json:"chunks"`
}

// Bytes decodes the payload according to its type.
func (m *Message) Bytes() ([]byte, error) {
	return DecodePayload(m.Bits, m.PayloadType)
}

// Text decodes the payload as text. Undecodable payloads yield
// DecodeErrorText together with the error.
func (m *Message) Text() (string, error) {
	data, err := m.Bytes()
	if err != nil {
		return DecodeErrorText, err
	}
	if len(data) == 0 {
		return DecodeErrorText, nil
	}
	return string(data), nil
}

type entry struct {
	total       int
	chunks      map[int]string
	received    int
	payloadType PayloadType
}

// PendingEntry describes a message still being reassembled.
type PendingEntry struct {
	MessageID int `json:"message_id"`
	Received  int `json:"received"`
	Total     int `json:"total"`
}

// Reassembler is the receiver path. Each receiver owns its own instance;
// entries are keyed by the 4-bit message id, so at most MessageIDSpace
// messages can be in flight. Incomplete entries stay until Evict.
type Reassembler struct {
	Threshold    float64
	UseAmplitude bool

	logger  *zap.Logger
	mu      sync.Mutex
	entries map[int]*entry
}

// NewReassembler returns an empty reassembler decoding with threshold.
func NewReassembler(threshold float64, useAmplitude bool, logger *zap.Logger) *Reassembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reassembler{
		Threshold:    threshold,
		UseAmplitude: useAmplitude,
		logger:       logger,
		entries:      make(map[int]*entry),
	}
}

// Receive decodes one frame from e and accepts it. A decoded length that
// differs from the oscillator count rejects the frame.
func (r *Reassembler) Receive(e Endpoint) (*Message, error) {
	bits := e.Decode(r.Threshold, r.UseAmplitude)
	if want := e.State().Len(); len(bits) != want {
		r.logger.Warn("rejected chunk: decoded length mismatch",
			zap.Int("bits", len(bits)),
			zap.Int("oscillators", want))
		return nil, errors.ProtocolErrorf(errors.ErrChunkLengthMismatch,
			"decoded %d bits from %d oscillators", len(bits), want)
	}
	return r.Accept(bits)
}

// Handler returns a framing Handler that feeds every carried frame to r
// and passes completed messages to done. A rejected chunk is logged by
// Receive and only drops that chunk; the remaining chunks are still sent.
func (r *Reassembler) Handler(done func(*Message)) Handler {
	return func(_ context.Context, receiver Endpoint) error {
		msg, err := r.Receive(receiver)
		if err != nil {
			if errors.IsCategory(err, errors.CategoryProtocol) {
				return nil
			}
			return err
		}
		if msg != nil && done != nil {
			done(msg)
		}
		return nil
	}
}

// Accept adds one frame. It returns the message once every chunk declared
// by the first frame seen for its id has arrived, and nil otherwise.
// Duplicate sequence numbers are ignored. A message that reaches its count
// with a sequence slot empty is discarded with PROTOCOL_MISSING_CHUNK.
func (r *Reassembler) Accept(frame string) (*Message, error) {
	h, err := ParseHeader(frame)
	if err != nil {
		r.logger.Warn("rejected chunk: bad header", zap.Error(err))
		return nil, err
	}
	if h.Total == 0 {
		r.logger.Warn("rejected chunk: zero total", zap.Int("message_id", h.MessageID))
		return nil, errors.ProtocolError(errors.ErrInvalidFrame, "frame declares zero chunks").
			WithContextf("message_id", h.MessageID)
	}
	payload := frame[HeaderBits:]

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h.MessageID]
	if !ok {
		e = &entry{
			total:       h.Total,
			chunks:      make(map[int]string, h.Total),
			payloadType: h.PayloadType,
		}
		r.entries[h.MessageID] = e
	}

	if _, dup := e.chunks[h.Sequence]; dup {
		r.logger.Warn("duplicate chunk ignored",
			zap.Int("message_id", h.MessageID),
			zap.Int("sequence", h.Sequence))
		return nil, nil
	}
	e.chunks[h.Sequence] = payload
	e.received++

	if e.received < e.total {
		return nil, nil
	}

	delete(r.entries, h.MessageID)

	var sb strings.Builder
	for seq := 0; seq < e.total; seq++ {
		p, ok := e.chunks[seq]
		if !ok {
			r.logger.Error("missing chunk on completion",
				zap.Int("message_id", h.MessageID),
				zap.Int("sequence", seq),
				zap.Int("total", e.total))
			return nil, errors.ProtocolErrorf(errors.ErrMissingChunk,
				"message %d completed by count without chunk %d", h.MessageID, seq).
				WithContextf("message_id", h.MessageID).
				WithContextf("sequence", seq)
		}
		sb.WriteString(p)
	}

	return &Message{
		ID:          h.MessageID,
		Bits:        sb.String(),
		PayloadType: e.payloadType,
		Chunks:      e.total,
	}, nil
}

// Pending lists incomplete messages ordered by id.
func (r *Reassembler) Pending() []PendingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PendingEntry, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, PendingEntry{MessageID: id, Received: e.received, Total: e.total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })
	return out
}

// Evict drops the entry for id and reports whether one existed.
func (r *Reassembler) Evict(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}
