package framing

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/r3d91ll/chime/pkg/errors"
)

// lengthPrefixBits is the width of the byte-count prefix carried by brotli
// and binary payloads so zero padding is never read as data.
const lengthPrefixBits = 16

// maxPrefixedBytes is the largest byte count the prefix can express.
const maxPrefixedBytes = 1<<lengthPrefixBits - 1

// EncodeText returns the payload bits for text. With allowCompression the
// brotli form is used when it is strictly shorter than the uncompressed
// form. Text ending in NUL is sent as a length-prefixed binary payload,
// since plain text payloads drop trailing NULs as padding.
func EncodeText(text string, allowCompression bool) (string, PayloadType) {
	plain, pt := TextToBits(text), PayloadText
	if strings.HasSuffix(text, "\x00") && len(text) <= maxPrefixedBytes {
		plain, pt = prefixed([]byte(text)), PayloadBinary
	}
	if !allowCompression {
		return plain, pt
	}

	compressed, err := compress([]byte(text))
	if err != nil || len(compressed) > maxPrefixedBytes {
		return plain, pt
	}
	packed := prefixed(compressed)
	if len(packed) >= len(plain) {
		return plain, pt
	}
	return packed, PayloadBrotli
}

// EncodeBinary returns length-prefixed payload bits for raw bytes.
func EncodeBinary(data []byte) (string, error) {
	if len(data) > maxPrefixedBytes {
		return "", errors.ProtocolErrorf(errors.ErrPayloadCapacity,
			"binary payload of %d bytes exceeds %d", len(data), maxPrefixedBytes)
	}
	return prefixed(data), nil
}

// DecodePayload turns reassembled payload bits back into bytes according to
// the payload type. Text drops trailing NUL padding.
func DecodePayload(bits string, pt PayloadType) ([]byte, error) {
	switch pt {
	case PayloadText:
		data, _, ok := BitsToBytes(bits)
		if !ok {
			return nil, errors.ProtocolError(errors.ErrPayloadDecode, "text payload is not a bit string")
		}
		return bytes.TrimRight(data, "\x00"), nil

	case PayloadBrotli:
		data, err := unprefixed(bits)
		if err != nil {
			return nil, err
		}
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, errors.WrapProtocol(err, errors.ErrPayloadDecode, "brotli payload is corrupt")
		}
		return out, nil

	case PayloadBinary:
		return unprefixed(bits)

	default:
		return nil, errors.ProtocolErrorf(errors.ErrPayloadDecode, "payload type %s is not supported", pt).
			WithContext("payload_type", pt.Bits())
	}
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func prefixed(data []byte) string {
	return pad(strconv.FormatUint(uint64(len(data)), 2), lengthPrefixBits) + BytesToBits(data)
}

func unprefixed(bits string) ([]byte, error) {
	if len(bits) < lengthPrefixBits {
		return nil, errors.ProtocolErrorf(errors.ErrPayloadDecode,
			"payload has %d bits, length prefix needs %d", len(bits), lengthPrefixBits)
	}
	n, err := strconv.ParseUint(bits[:lengthPrefixBits], 2, lengthPrefixBits+1)
	if err != nil {
		return nil, errors.WrapProtocol(err, errors.ErrPayloadDecode, "length prefix is not a bit string")
	}
	data, _, ok := BitsToBytes(bits[lengthPrefixBits:])
	if !ok {
		return nil, errors.ProtocolError(errors.ErrPayloadDecode, "payload is not a bit string")
	}
	if int(n) > len(data) {
		return nil, errors.ProtocolErrorf(errors.ErrPayloadDecode,
			"payload declares %d bytes but carries %d", n, len(data))
	}
	return data[:n], nil
}
