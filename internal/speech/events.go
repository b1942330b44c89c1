package speech

// EventType identifies a session lifecycle notification.
type EventType int

const (
	// EventStarted fires when playback begins.
	EventStarted EventType = iota
	// EventPaused fires when playback is suspended.
	EventPaused
	// EventResumed fires when playback continues.
	EventResumed
	// EventEnded fires when playback runs to completion.
	EventEnded
	// EventStopped fires when playback is cancelled.
	EventStopped
	// EventFailed fires when a session fails; Kind carries the reason.
	EventFailed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	case EventEnded:
		return "ended"
	case EventStopped:
		return "stopped"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a session lifecycle notification.
type Event struct {
	Type EventType
	// Kind is set for EventFailed.
	Kind FailureKind
	// Err is set for EventFailed.
	Err error
	// Text is the utterance the event belongs to.
	Text string
	// VoiceID is the voice that served or was serving the utterance.
	VoiceID string
	// Cached reports whether the audio came from the local cache.
	Cached bool
}

const eventBuffer = 16

// emit delivers an event without ever blocking the session goroutine. A
// slow consumer loses old notifications, not playback.
func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
		o.logger.Warn("dropping speech event, consumer too slow", "type", ev.Type)
	}
}
