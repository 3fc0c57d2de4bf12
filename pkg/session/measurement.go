package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/r3d91ll/chime/pkg/errors"
	"github.com/r3d91ll/chime/pkg/link"
)

// Measurement is one per-cycle reading of both agents during a transmission.
type Measurement struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	SessionID      string `json:"session_id"`
	TransmissionID string `json:"transmission_id,omitempty"`
	MessageID      int    `json:"message_id"`
	Sequence       int    `json:"sequence"`
	Cycle          int    `json:"cycle"`
	Mode           string `json:"mode"`

	SenderResonance   float64 `json:"sender_resonance"`
	SenderEntropy     float64 `json:"sender_entropy"`
	SenderCoherence   float64 `json:"sender_coherence"`
	ReceiverResonance float64 `json:"receiver_resonance"`
	ReceiverEntropy   float64 `json:"receiver_entropy"`
	ReceiverCoherence float64 `json:"receiver_coherence"`

	// CouplingResonance is the resonance the coupling step measured
	// between the two states; 0 in direct mode.
	CouplingResonance float64 `json:"coupling_resonance"`
	Corrected         bool    `json:"corrected"`

	Status ResonanceStatus `json:"status"`
}

// ResonanceStatus buckets a receiver resonance reading.
type ResonanceStatus string

const (
	ResonanceLocked   ResonanceStatus = "locked"   // ≥ 0.95
	ResonanceCoherent ResonanceStatus = "coherent" // [0.8, 0.95)
	ResonanceDrifting ResonanceStatus = "drifting" // [0.5, 0.8)
	ResonanceLost     ResonanceStatus = "lost"     // < 0.5
)

// IsValid returns true if this is a known status.
func (s ResonanceStatus) IsValid() bool {
	switch s {
	case ResonanceLocked, ResonanceCoherent, ResonanceDrifting, ResonanceLost:
		return true
	default:
		return false
	}
}

// ComputeResonanceStatus classifies a resonance value.
func ComputeResonanceStatus(resonance float64) ResonanceStatus {
	switch {
	case resonance >= 0.95:
		return ResonanceLocked
	case resonance >= 0.8:
		return ResonanceCoherent
	case resonance >= 0.5:
		return ResonanceDrifting
	default:
		return ResonanceLost
	}
}

// NewMeasurement creates a Measurement with a generated ID.
func NewMeasurement() *Measurement {
	return &Measurement{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
	}
}

// MeasurementFromCycle converts a link cycle event.
func MeasurementFromCycle(ev link.CycleEvent) *Measurement {
	m := NewMeasurement()
	m.MessageID = ev.MessageID
	m.Sequence = ev.Sequence
	m.Cycle = ev.Cycle
	m.Mode = string(ev.Mode)
	m.SenderResonance = ev.Sender.Resonance
	m.SenderEntropy = ev.Sender.Entropy
	m.SenderCoherence = ev.Sender.Coherence
	m.ReceiverResonance = ev.Receiver.Resonance
	m.ReceiverEntropy = ev.Receiver.Entropy
	m.ReceiverCoherence = ev.Receiver.Coherence
	m.CouplingResonance = ev.Coupling.Resonance
	m.Corrected = ev.Corrected
	m.Status = ComputeResonanceStatus(ev.Receiver.Resonance)
	return m
}

// Validate checks the measurement.
func (m *Measurement) Validate() error {
	if m.ID == "" {
		return errors.ValidationError(errors.ErrValidationRequired, "id is required").
			WithContext("field", "id")
	}
	if m.Cycle < 1 {
		return errors.ValidationErrorf(errors.ErrValidationOutOfRange, "cycle must be at least 1, got %d", m.Cycle).
			WithContext("field", "cycle")
	}
	for field, v := range map[string]float64{
		"sender_resonance":   m.SenderResonance,
		"receiver_resonance": m.ReceiverResonance,
		"coupling_resonance": m.CouplingResonance,
	} {
		if v < 0 || v > 1 {
			return errors.ValidationErrorf(errors.ErrValidationOutOfRange, "%s must be in [0, 1], got %g", field, v).
				WithContext("field", field)
		}
	}
	if m.Status != "" && !m.Status.IsValid() {
		return errors.ValidationErrorf(errors.ErrValidationInvalidValue, "invalid status %q", m.Status).
			WithContext("field", "status")
	}
	return nil
}
