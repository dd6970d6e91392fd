package session

// State is the room signaling session state.
type State string

const (
	StateIdle        State = "idle"
	StateCameraReady State = "camera-ready"
	StateConnected   State = "connected"
	StateNegotiating State = "negotiating"
	StateEstablished State = "established"
	StateClosed      State = "closed"
)

// Event is something that happened to the session.
type Event string

const (
	EventMediaAcquired Event = "media-acquired"
	EventLinkCreated   Event = "link-created"
	EventOfferSent     Event = "offer-sent"
	EventMediaFlowing  Event = "media-flowing"
	EventClosed        Event = "closed"
)

// Transition is the single source of truth for session state changes.
// It returns the next state and whether the event is legal in the current
// one; illegal events leave the state untouched.
func Transition(s State, e Event) (State, bool) {
	if e == EventClosed {
		if s == StateClosed {
			return s, false
		}
		return StateClosed, true
	}

	switch s {
	case StateIdle:
		if e == EventMediaAcquired {
			return StateCameraReady, true
		}
	case StateCameraReady:
		if e == EventLinkCreated {
			return StateConnected, true
		}
	case StateConnected:
		if e == EventOfferSent {
			return StateNegotiating, true
		}
	case StateNegotiating:
		if e == EventMediaFlowing {
			return StateEstablished, true
		}
	}
	return s, false
}
