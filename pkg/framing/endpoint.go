package framing

import (
	"context"

	"github.com/r3d91ll/chime/pkg/oscillator"
)

// Endpoint is the capability a communicating party must offer the framing
// layer.
type Endpoint interface {
	// Encode writes a frame's bits into the state.
	Encode(bits string, phaseEpsilon, amplitudeEpsilon float64)
	// Decode reads one bit per oscillator basis.
	Decode(threshold float64, useAmplitude bool) string
	// State is the mutable oscillator state.
	State() *oscillator.PhaseState
	// Reference is the baseline the state is measured against.
	Reference() *oscillator.PhaseState
}

// Carrier moves an encoded frame from sender to receiver. It runs after the
// sender has encoded the frame and before the receiver decodes it.
type Carrier interface {
	Carry(ctx context.Context, sender, receiver Endpoint, frame Frame) error
}

// CarrierFunc adapts a function to Carrier.
type CarrierFunc func(ctx context.Context, sender, receiver Endpoint, frame Frame) error

// Carry calls f.
func (f CarrierFunc) Carry(ctx context.Context, sender, receiver Endpoint, frame Frame) error {
	return f(ctx, sender, receiver, frame)
}

// CloneCarrier hands over by making the receiver's state and reference
// independent clones of the sender's.
var CloneCarrier Carrier = CarrierFunc(func(_ context.Context, sender, receiver Endpoint, _ Frame) error {
	HandOver(sender, receiver)
	return nil
})

// HandOver overwrites the receiver's state and reference with clones of the
// sender's.
func HandOver(sender, receiver Endpoint) {
	*receiver.State() = *sender.State().Clone()
	*receiver.Reference() = *sender.Reference().Clone()
}

// Frame is one packed chunk ready for encoding.
type Frame struct {
	Header  Header `json:"header"`
	Payload string `json:"payload"`
	Bits    string `json:"bits"`
}
