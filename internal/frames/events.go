package frames

import "time"

// Phase is a step of a frame's lifecycle.
type Phase string

const (
	PhaseResolving   Phase = "resolving"
	PhaseSkipping    Phase = "skipping"
	PhaseWaiting     Phase = "waiting"
	PhaseDownloading Phase = "downloading"
	PhaseRetrying    Phase = "retrying"
	PhaseDownloaded  Phase = "downloaded"
	PhaseFailed      Phase = "failed"
)

// Event is emitted on every phase transition of a frame.
type Event struct {
	RunID   string
	Frame   int
	Phase   Phase
	Outcome Outcome
	Path    string
	Bytes   int64
	Attempt int
	Delay   time.Duration
	Err     error
	Time    time.Time
}

// Observer receives engine events. Observe is called from worker goroutines
// and must be safe for concurrent use.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}
