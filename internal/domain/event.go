package domain

type EventType string

const (
	EventOffer     EventType = "offer"
	EventAnswer    EventType = "answer"
	EventCandidate EventType = "candidate"
	EventState     EventType = "state"
	EventEnded     EventType = "ended"
)

// End reasons.
const (
	ReasonEnded   = "ended"
	ReasonExpired = "expired"
)

// Event notifies watchers that something changed on a session.
// Polling stays authoritative; events only hint that a fetch will succeed.
type Event struct {
	Type      EventType `json:"type"`
	SessionID SessionID `json:"sessionId"`
	State     State     `json:"state"`
	Index     int       `json:"index,omitempty"`
	Side      Side      `json:"side,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}
