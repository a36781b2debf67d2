package core

import (
	"sync"
	"time"

	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// session is the mutable state of one signaling session.
// Every method takes mu; callers never touch fields directly.
type session struct {
	mu sync.Mutex

	id           domain.SessionID
	participants domain.Participants
	initiator    domain.Role

	state      domain.State
	offer      *string
	answer     *string
	candidates []domain.Candidate

	answerSeen bool
	remoteSeen map[domain.Side]bool

	createdAt      time.Time
	lastActivityAt time.Time
}

func newSession(id domain.SessionID, p domain.Participants, initiator domain.Role, now time.Time) *session {
	return &session{
		id:             id,
		participants:   p,
		initiator:      initiator,
		state:          domain.StateCreated,
		remoteSeen:     make(map[domain.Side]bool, 2),
		createdAt:      now,
		lastActivityAt: now,
	}
}

func (s *session) snapshotLocked() domain.Session {
	return domain.Session{
		ID:              s.id,
		Participants:    s.participants,
		InitiatorRole:   s.initiator,
		CounterpartRole: s.initiator.Other(),
		State:           s.state,
		HasOffer:        s.offer != nil,
		HasAnswer:       s.answer != nil,
		Candidates:      len(s.candidates),
		CreatedAt:       s.createdAt,
		LastActivityAt:  s.lastActivityAt,
	}
}

func (s *session) snapshot() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *session) transitionLocked(to domain.State, now time.Time) {
	log.Debug().Str("module", "core.session").Str("sid", string(s.id)).
		Str("from", string(s.state)).Str("to", string(to)).Msg("state transition")
	s.state = to
	s.lastActivityAt = now
}

func (s *session) setOffer(payload string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return ErrEnded
	}
	if s.offer != nil {
		return &PayloadConflictError{Kind: "offer", Identical: *s.offer == payload}
	}
	if s.state != domain.StateCreated {
		return ErrInvalidState
	}
	s.offer = &payload
	s.transitionLocked(domain.StateOfferSet, now)
	return nil
}

func (s *session) setAnswer(payload string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return ErrEnded
	}
	if s.answer != nil {
		return &PayloadConflictError{Kind: "answer", Identical: *s.answer == payload}
	}
	if s.state != domain.StateOfferSet {
		return ErrInvalidState
	}
	s.answer = &payload
	s.transitionLocked(domain.StateAnswered, now)
	return nil
}

func (s *session) getOffer() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return "", false, ErrEnded
	}
	if s.offer == nil {
		return "", false, nil
	}
	return *s.offer, true, nil
}

func (s *session) getAnswer() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return "", false, ErrEnded
	}
	if s.answer == nil {
		return "", false, nil
	}
	return *s.answer, true, nil
}

func (s *session) appendCandidate(side domain.Side, c domain.CandidateInit, limit int, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return 0, ErrEnded
	}
	if limit > 0 && len(s.candidates) >= limit {
		return 0, ErrCapExceeded
	}
	idx := len(s.candidates) + 1
	s.candidates = append(s.candidates, domain.Candidate{
		CandidateInit: c,
		Index:         idx,
		Side:          side,
		CreatedAt:     now,
	})
	s.lastActivityAt = now
	return idx, nil
}

func (s *session) listCandidates(since int) ([]domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return nil, ErrEnded
	}
	if since < 0 {
		since = 0
	}
	if since >= len(s.candidates) {
		return []domain.Candidate{}, nil
	}
	// Index i+1 lives at position i, so everything after since starts at since.
	out := make([]domain.Candidate, len(s.candidates)-since)
	copy(out, s.candidates[since:])
	return out, nil
}

func (s *session) markActive(now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case domain.StateActive:
		return false, nil
	case domain.StateAnswered:
		s.transitionLocked(domain.StateActive, now)
		return true, nil
	case domain.StateEnded:
		return false, ErrEnded
	}
	return false, ErrInvalidState
}

func (s *session) observe(o Observation, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false, ErrEnded
	}
	if o.AnswerSeen && o.Side == domain.SideCaller {
		s.answerSeen = true
	}
	if o.RemoteCandidates {
		s.remoteSeen[o.Side] = true
	}
	if s.state == domain.StateAnswered && s.answerSeen &&
		s.remoteSeen[domain.SideCaller] && s.remoteSeen[domain.SideCallee] {
		s.transitionLocked(domain.StateActive, now)
		return true, nil
	}
	return false, nil
}

// end marks the session ENDED; reports false if it already was.
func (s *session) end(now time.Time) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return s.snapshotLocked(), false
	}
	s.transitionLocked(domain.StateEnded, now)
	return s.snapshotLocked(), true
}

// expireIfIdle ends the session when it has been idle longer than maxAge.
func (s *session) expireIfIdle(cutoff, now time.Time) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() || !s.lastActivityAt.Before(cutoff) {
		return domain.Session{}, false
	}
	s.transitionLocked(domain.StateEnded, now)
	return s.snapshotLocked(), true
}
