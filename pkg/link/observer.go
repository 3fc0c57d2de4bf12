package link

import (
	"github.com/r3d91ll/chime/pkg/coupling"
	"github.com/r3d91ll/chime/pkg/metrics"
)

// CycleEvent is emitted after every coupling cycle.
type CycleEvent struct {
	MessageID int              `json:"message_id"`
	Sequence  int              `json:"sequence"`
	Cycle     int              `json:"cycle"`
	Mode      Mode             `json:"mode"`
	Sender    metrics.Snapshot `json:"sender"`
	Receiver  metrics.Snapshot `json:"receiver"`
	Coupling  coupling.Result  `json:"coupling"`
	Corrected bool             `json:"corrected"`
}

// FrameEvent is emitted after the receiver has decoded a frame.
type FrameEvent struct {
	MessageID int    `json:"message_id"`
	Sequence  int    `json:"sequence"`
	Total     int    `json:"total"`
	Sent      string `json:"sent"`
	Received  string `json:"received"`
	BitErrors int    `json:"bit_errors"`
	Error     string `json:"error,omitempty"`
}

// Observer receives link events. Implementations must not block.
type Observer interface {
	ObserveCycle(CycleEvent)
	ObserveFrame(FrameEvent)
}

// Observers fans events out to several observers in order.
type Observers []Observer

// ObserveCycle forwards to every observer.
func (o Observers) ObserveCycle(ev CycleEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveCycle(ev)
		}
	}
}

// ObserveFrame forwards to every observer.
func (o Observers) ObserveFrame(ev FrameEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveFrame(ev)
		}
	}
}

type nopObserver struct{}

func (nopObserver) ObserveCycle(CycleEvent) {}
func (nopObserver) ObserveFrame(FrameEvent) {}
