package core

import (
	"time"

	"github.com/dkeye/CallRelay/internal/domain"
)

// Observation records that one side has seen data from its counterpart.
// It drives the implicit ANSWERED -> ACTIVE transition.
type Observation struct {
	Side             domain.Side
	AnswerSeen       bool
	RemoteCandidates bool
}

// SessionStore owns all mutable session state.
// Operations on one session are serialized; different sessions never share a lock.
type SessionStore interface {
	Create(p domain.Participants, initiator domain.Role) (domain.Session, error)
	Get(id domain.SessionID) (domain.Session, error)
	FindActive(p domain.Participants) (domain.Session, error)

	SetOffer(id domain.SessionID, payload string) error
	GetOffer(id domain.SessionID) (string, bool, error)
	SetAnswer(id domain.SessionID, payload string) error
	GetAnswer(id domain.SessionID) (string, bool, error)

	AppendCandidate(id domain.SessionID, side domain.Side, c domain.CandidateInit) (int, error)
	ListCandidates(id domain.SessionID, since int) ([]domain.Candidate, error)

	MarkActive(id domain.SessionID) (bool, error)
	RecordObservation(id domain.SessionID, o Observation) (bool, error)

	End(id domain.SessionID) (domain.Session, error)
	SweepExpired(maxAge time.Duration) int
	Len() int
}

// EvictFunc is called once per removed session with its final snapshot.
type EvictFunc func(s domain.Session, reason string)
