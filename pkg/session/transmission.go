package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/r3d91ll/chime/pkg/link"
)

// Transmission records one message sent over a link.
type Transmission struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	MessageID   int    `json:"message_id"`
	Mode        string `json:"mode"`
	Text        string `json:"text"`
	Decoded     string `json:"decoded"`
	Chunks      int    `json:"chunks"`
	PayloadType string `json:"payload_type"`
	Success     bool   `json:"success"`
	BitErrors   int    `json:"bit_errors"`
	FrameBits   int    `json:"frame_bits"`
	Error       string `json:"error,omitempty"`
}

// NewTransmission builds a record from a link outcome.
func NewTransmission(mode link.Mode, out link.Outcome) *Transmission {
	return &Transmission{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		MessageID:   out.Report.MessageID,
		Mode:        string(mode),
		Text:        out.Text,
		Decoded:     out.Decoded,
		Chunks:      out.Report.Chunks,
		PayloadType: out.Report.PayloadType.String(),
		Success:     out.Success,
		BitErrors:   out.BitErrors,
		FrameBits:   out.FrameBits,
		Error:       out.Error,
	}
}

// BitErrorRate is BitErrors over FrameBits.
func (t *Transmission) BitErrorRate() float64 {
	if t.FrameBits == 0 {
		return 0
	}
	return float64(t.BitErrors) / float64(t.FrameBits)
}
