// Package framing fragments text into fixed-width bit frames sized to an
// agent's oscillator count, drives one encode per frame, and reassembles
// decoded frames on the receiving side.
//
// A frame is a 15-bit header followed by oscillatorCount−15 payload bits:
//
//	messageId(4) | sequence(4) | total(4) | isLast(1) | payloadType(2) | payload
package framing

import (
	"strconv"
	"strings"

	"github.com/r3d91ll/chime/pkg/errors"
)

// Header field widths.
const (
	MessageIDBits   = 4
	SequenceBits    = 4
	TotalBits       = 4
	IsLastBits      = 1
	PayloadTypeBits = 2

	// HeaderBits is the fixed header width.
	HeaderBits = MessageIDBits + SequenceBits + TotalBits + IsLastBits + PayloadTypeBits

	// MaxChunks is the largest chunk count the total field can carry.
	MaxChunks = 1<<TotalBits - 1

	// MessageIDSpace is the number of distinct message ids; ids cycle
	// modulo this value.
	MessageIDSpace = 1 << MessageIDBits
)

// PayloadType tags how the payload bits are to be interpreted.
type PayloadType uint8

const (
	// PayloadText is UTF-8 text, NUL padded.
	PayloadText PayloadType = 0b00
	// PayloadBrotli is brotli-compressed UTF-8 text with a length prefix.
	PayloadBrotli PayloadType = 0b01
	// PayloadBinary is raw bytes with a length prefix.
	PayloadBinary PayloadType = 0b10
	// PayloadReserved is not assigned.
	PayloadReserved PayloadType = 0b11
)

// Bits returns the two-bit wire form.
func (p PayloadType) Bits() string {
	return pad(strconv.FormatUint(uint64(p), 2), PayloadTypeBits)
}

// String returns the name of the payload type.
func (p PayloadType) String() string {
	switch p {
	case PayloadText:
		return "text"
	case PayloadBrotli:
		return "brotli"
	case PayloadBinary:
		return "binary"
	case PayloadReserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// Header is the decoded 15-bit frame header.
type Header struct {
	MessageID   int         `json:"message_id"`
	Sequence    int         `json:"sequence"`
	Total       int         `json:"total"`
	IsLast      bool        `json:"is_last"`
	PayloadType PayloadType `json:"payload_type"`
}

type field struct {
	name  string
	value int
	width int
}

// BuildHeader packs h into its 15-bit form. A field that does not fit its
// width is a PROTOCOL_HEADER_OVERFLOW error and no bits are returned.
func BuildHeader(h Header) (string, error) {
	last := 0
	if h.IsLast {
		last = 1
	}
	fields := []field{
		{"message_id", h.MessageID, MessageIDBits},
		{"sequence", h.Sequence, SequenceBits},
		{"total", h.Total, TotalBits},
		{"is_last", last, IsLastBits},
		{"payload_type", int(h.PayloadType), PayloadTypeBits},
	}

	var sb strings.Builder
	sb.Grow(HeaderBits)
	for _, f := range fields {
		if f.value < 0 || f.value >= 1<<f.width {
			return "", errors.ProtocolErrorf(errors.ErrHeaderOverflow,
				"header field %s=%d does not fit in %d bits", f.name, f.value, f.width).
				WithContext("field", f.name).
				WithContextf("value", f.value)
		}
		sb.WriteString(pad(strconv.FormatUint(uint64(f.value), 2), f.width))
	}
	return sb.String(), nil
}

// ParseHeader reads the header from the first HeaderBits of frame.
func ParseHeader(frame string) (Header, error) {
	if len(frame) < HeaderBits {
		return Header{}, errors.ProtocolErrorf(errors.ErrInvalidFrame,
			"frame has %d bits, header needs %d", len(frame), HeaderBits)
	}

	var h Header
	off := 0
	read := func(width int) (int, error) {
		s := frame[off : off+width]
		off += width
		v, err := strconv.ParseUint(s, 2, width+1)
		if err != nil {
			return 0, errors.WrapProtocol(err, errors.ErrInvalidFrame, "header is not a bit string").
				WithContext("bits", s)
		}
		return int(v), nil
	}

	var err error
	if h.MessageID, err = read(MessageIDBits); err != nil {
		return Header{}, err
	}
	if h.Sequence, err = read(SequenceBits); err != nil {
		return Header{}, err
	}
	if h.Total, err = read(TotalBits); err != nil {
		return Header{}, err
	}
	last, err := read(IsLastBits)
	if err != nil {
		return Header{}, err
	}
	h.IsLast = last == 1
	pt, err := read(PayloadTypeBits)
	if err != nil {
		return Header{}, err
	}
	h.PayloadType = PayloadType(pt)
	return h, nil
}

func pad(bits string, width int) string {
	if len(bits) >= width {
		return bits
	}
	return strings.Repeat("0", width-len(bits)) + bits
}
