package api

import (
	"sync"

	"github.com/r3d91ll/chime/pkg/link"
	"github.com/r3d91ll/chime/pkg/session"
)

// CycleData is the payload of a cycle event.
type CycleData struct {
	MessageID         int                     `json:"message_id"`
	Sequence          int                     `json:"sequence"`
	Cycle             int                     `json:"cycle"`
	Mode              string                  `json:"mode"`
	SenderResonance   float64                 `json:"sender_resonance"`
	ReceiverResonance float64                 `json:"receiver_resonance"`
	ReceiverEntropy   float64                 `json:"receiver_entropy"`
	ReceiverCoherence float64                 `json:"receiver_coherence"`
	CouplingResonance float64                 `json:"coupling_resonance"`
	Corrected         bool                    `json:"corrected"`
	Status            session.ResonanceStatus `json:"status"`
}

// FrameData is the payload of a frame event.
type FrameData struct {
	MessageID int    `json:"message_id"`
	Sequence  int    `json:"sequence"`
	Total     int    `json:"total"`
	Sent      string `json:"sent"`
	Received  string `json:"received"`
	BitErrors int    `json:"bit_errors"`
	Error     string `json:"error,omitempty"`
}

// StatusData is the payload of a status event. It is sent when the
// receiver's resonance status changes.
type StatusData struct {
	Previous session.ResonanceStatus `json:"previous,omitempty"`
	Current  session.ResonanceStatus `json:"current"`
	Cycle    int                     `json:"cycle"`
}

// HubObserver publishes link events to a hub.
type HubObserver struct {
	hub *Hub

	mu     sync.Mutex
	status session.ResonanceStatus
}

// NewHubObserver returns a link.Observer that broadcasts through hub.
func NewHubObserver(hub *Hub) *HubObserver {
	return &HubObserver{hub: hub}
}

// ObserveCycle implements link.Observer.
func (o *HubObserver) ObserveCycle(ev link.CycleEvent) {
	status := session.ComputeResonanceStatus(ev.Receiver.Resonance)
	o.hub.BroadcastCycle(&CycleData{
		MessageID:         ev.MessageID,
		Sequence:          ev.Sequence,
		Cycle:             ev.Cycle,
		Mode:              string(ev.Mode),
		SenderResonance:   ev.Sender.Resonance,
		ReceiverResonance: ev.Receiver.Resonance,
		ReceiverEntropy:   ev.Receiver.Entropy,
		ReceiverCoherence: ev.Receiver.Coherence,
		CouplingResonance: ev.Coupling.Resonance,
		Corrected:         ev.Corrected,
		Status:            status,
	})

	o.mu.Lock()
	prev := o.status
	o.status = status
	o.mu.Unlock()
	if prev != status {
		o.hub.BroadcastStatus(&StatusData{Previous: prev, Current: status, Cycle: ev.Cycle})
	}
}

// ObserveFrame implements link.Observer.
func (o *HubObserver) ObserveFrame(ev link.FrameEvent) {
	o.hub.BroadcastFrame(&FrameData{
		MessageID: ev.MessageID,
		Sequence:  ev.Sequence,
		Total:     ev.Total,
		Sent:      ev.Sent,
		Received:  ev.Received,
		BitErrors: ev.BitErrors,
		Error:     ev.Error,
	})
}

var _ link.Observer = (*HubObserver)(nil)
