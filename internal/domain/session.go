package domain

import "time"

type SessionID string

// State is the position of a session in its forward-only lifecycle.
type State string

const (
	StateCreated  State = "CREATED"
	StateOfferSet State = "OFFER_SET"
	StateAnswered State = "ANSWERED"
	StateActive   State = "ACTIVE"
	StateEnded    State = "ENDED"
)

var stateOrder = map[State]int{
	StateCreated:  0,
	StateOfferSet: 1,
	StateAnswered: 2,
	StateActive:   3,
	StateEnded:    4,
}

// Before reports whether s comes strictly earlier than o in the lifecycle.
func (s State) Before(o State) bool { return stateOrder[s] < stateOrder[o] }

func (s State) Terminal() bool { return s == StateEnded }

// Side tags who submitted a candidate.
type Side string

const (
	SideCaller Side = "caller"
	SideCallee Side = "callee"
)

func (s Side) Other() Side {
	if s == SideCaller {
		return SideCallee
	}
	return SideCaller
}

// CandidateInit is an opaque connectivity candidate as submitted by a client.
type CandidateInit struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// Candidate is a stored candidate. Index is 1-based and never reused.
type Candidate struct {
	CandidateInit
	Index     int       `json:"index"`
	Side      Side      `json:"side"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is a read-only snapshot of a signaling session (no payloads).
type Session struct {
	ID              SessionID    `json:"sessionId"`
	Participants    Participants `json:"participants"`
	InitiatorRole   Role         `json:"initiatorRole"`
	CounterpartRole Role         `json:"counterpartRole"`
	State           State        `json:"state"`
	HasOffer        bool         `json:"hasOffer"`
	HasAnswer       bool         `json:"hasAnswer"`
	Candidates      int          `json:"candidates"`
	CreatedAt       time.Time    `json:"createdAt"`
	LastActivityAt  time.Time    `json:"lastActivityAt"`
}

// SideOf maps a principal's role to its negotiation side.
func (s Session) SideOf(p Principal) Side {
	if p.Role == s.InitiatorRole {
		return SideCaller
	}
	return SideCallee
}
