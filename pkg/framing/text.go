package framing

import (
	"strings"

	"go.uber.org/zap"
)

// DecodeErrorText is returned by BitsToText when no whole byte can be read.
const DecodeErrorText = "[DECODE_ERROR]"

// BytesToBits renders each byte as 8 bits, most significant first.
func BytesToBits(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data) * 8)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			if b&(1<<i) != 0 {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
	}
	return sb.String()
}

// BitsToBytes reads whole bytes from bits. Trailing bits that do not make a
// full byte are dropped and reported through truncated. ok is false when a
// character other than '0' or '1' is present.
func BitsToBytes(bits string) (data []byte, truncated bool, ok bool) {
	whole := len(bits) - len(bits)%8
	data = make([]byte, 0, whole/8)
	for i := 0; i < whole; i += 8 {
		var b byte
		for _, c := range bits[i : i+8] {
			b <<= 1
			switch c {
			case '1':
				b |= 1
			case '0':
			default:
				return nil, false, false
			}
		}
		data = append(data, b)
	}
	return data, whole != len(bits), true
}

// TextToBits encodes the UTF-8 bytes of text, 8 bits per byte.
func TextToBits(text string) string {
	return BytesToBits([]byte(text))
}

// BitsToText decodes bits as UTF-8 text. A length that is not a multiple of
// 8 is truncated with a warning. Empty input, input with no whole byte, or
// input that is not a bit string yields DecodeErrorText.
func BitsToText(bits string, logger *zap.Logger) string {
	if logger == nil {
		logger = zap.NewNop()
	}
	data, truncated, ok := BitsToBytes(bits)
	if !ok {
		logger.Warn("binary contains non-bit characters", zap.Int("bits", len(bits)))
		return DecodeErrorText
	}
	if truncated {
		logger.Warn("binary truncated to whole bytes",
			zap.Int("bits", len(bits)),
			zap.Int("dropped", len(bits)%8))
	}
	if len(data) == 0 {
		return DecodeErrorText
	}
	return string(data)
}
