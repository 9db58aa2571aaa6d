package tutor

// EventType is the kind of a streamed server event.
type EventType string

const (
	EventStep    EventType = "step"
	EventFinal   EventType = "final"
	EventNote    EventType = "note"
	EventConsent EventType = "consent"
)

// Known reports whether the type is part of the protocol. Unknown types are
// still delivered and rendered as assistant output.
func (t EventType) Known() bool {
	switch t {
	case EventStep, EventFinal, EventNote, EventConsent:
		return true
	default:
		return false
	}
}

// Event is one decoded `data:` payload of the chat stream.
type Event struct {
	Type     EventType `json:"type"`
	Content  string    `json:"content"`
	ThreadID string    `json:"thread_id,omitempty"`
}
