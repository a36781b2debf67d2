package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultShards       = 32
	DefaultCandidateCap = 256
)

type shard struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*session
	pairs    map[string]domain.SessionID
}

// MemoryStore is a sharded in-memory SessionStore.
type MemoryStore struct {
	shards       []*shard
	candidateCap int
	now          func() time.Time
	newID        func() domain.SessionID
	onEvict      EvictFunc
}

type Option func(*MemoryStore)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// WithCandidateCap sets the per-session soft cap; <= 0 disables it.
func WithCandidateCap(n int) Option {
	return func(s *MemoryStore) { s.candidateCap = n }
}

func WithShards(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.shards = newShards(n)
		}
	}
}

// WithEvictHook registers fn to be called for every removed session.
func WithEvictHook(fn EvictFunc) Option {
	return func(s *MemoryStore) { s.onEvict = fn }
}

func WithIDGenerator(fn func() domain.SessionID) Option {
	return func(s *MemoryStore) { s.newID = fn }
}

func newShards(n int) []*shard {
	out := make([]*shard, n)
	for i := range out {
		out[i] = &shard{
			sessions: make(map[domain.SessionID]*session),
			pairs:    make(map[string]domain.SessionID),
		}
	}
	return out
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		shards:       newShards(DefaultShards),
		candidateCap: DefaultCandidateCap,
		now:          time.Now,
		newID:        func() domain.SessionID { return domain.SessionID(uuid.NewString()) },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

func (s *MemoryStore) lookup(id domain.SessionID) (*session, error) {
	sh := s.shardFor(string(id))
	sh.mu.RLock()
	sess, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, nil
}

// Create allocates a session for the pair. The session is published under its
// fresh id first and only then bound to the pair, so no path nests shard locks.
func (s *MemoryStore) Create(p domain.Participants, initiator domain.Role) (domain.Session, error) {
	id := s.newID()
	sess := newSession(id, p, initiator, s.now())

	is := s.shardFor(string(id))
	is.mu.Lock()
	if _, taken := is.sessions[id]; taken {
		is.mu.Unlock()
		return domain.Session{}, fmt.Errorf("session id collision: %s", id)
	}
	is.sessions[id] = sess
	is.mu.Unlock()

	key := p.Key()
	ps := s.shardFor(key)
	ps.mu.Lock()
	existing, dup := ps.pairs[key]
	if !dup {
		ps.pairs[key] = id
	}
	ps.mu.Unlock()

	if dup {
		is.mu.Lock()
		delete(is.sessions, id)
		is.mu.Unlock()
		return domain.Session{}, &DuplicateSessionError{Existing: string(existing)}
	}

	log.Info().Str("module", "core.store").Str("sid", string(id)).Str("pair", key).Msg("session created")
	return sess.snapshot(), nil
}

func (s *MemoryStore) Get(id domain.SessionID) (domain.Session, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return domain.Session{}, err
	}
	return sess.snapshot(), nil
}

func (s *MemoryStore) FindActive(p domain.Participants) (domain.Session, error) {
	ps := s.shardFor(p.Key())
	ps.mu.RLock()
	id, ok := ps.pairs[p.Key()]
	ps.mu.RUnlock()
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: no session for pair %s", ErrNotFound, p.Key())
	}
	return s.Get(id)
}

func (s *MemoryStore) SetOffer(id domain.SessionID, payload string) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	return sess.setOffer(payload, s.now())
}

func (s *MemoryStore) GetOffer(id domain.SessionID) (string, bool, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return "", false, err
	}
	return sess.getOffer()
}

func (s *MemoryStore) SetAnswer(id domain.SessionID, payload string) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	return sess.setAnswer(payload, s.now())
}

func (s *MemoryStore) GetAnswer(id domain.SessionID) (string, bool, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return "", false, err
	}
	return sess.getAnswer()
}

func (s *MemoryStore) AppendCandidate(id domain.SessionID, side domain.Side, c domain.CandidateInit) (int, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return sess.appendCandidate(side, c, s.candidateCap, s.now())
}

func (s *MemoryStore) ListCandidates(id domain.SessionID, since int) ([]domain.Candidate, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return sess.listCandidates(since)
}

func (s *MemoryStore) MarkActive(id domain.SessionID) (bool, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	return sess.markActive(s.now())
}

func (s *MemoryStore) RecordObservation(id domain.SessionID, o Observation) (bool, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	return sess.observe(o, s.now())
}

// End transitions the session to ENDED and removes it immediately.
func (s *MemoryStore) End(id domain.SessionID) (domain.Session, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return domain.Session{}, err
	}
	snap, changed := sess.end(s.now())
	if !changed {
		// Another caller is already removing it.
		return snap, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.remove(snap, domain.ReasonEnded)
	return snap, nil
}

// SweepExpired ends and removes every live session idle for longer than maxAge.
func (s *MemoryStore) SweepExpired(maxAge time.Duration) int {
	now := s.now()
	cutoff := now.Add(-maxAge)
	var expired []domain.Session
	for _, sh := range s.shards {
		sh.mu.RLock()
		candidates := make([]*session, 0, len(sh.sessions))
		for _, sess := range sh.sessions {
			candidates = append(candidates, sess)
		}
		sh.mu.RUnlock()

		for _, sess := range candidates {
			if snap, ok := sess.expireIfIdle(cutoff, now); ok {
				expired = append(expired, snap)
			}
		}
	}
	for _, snap := range expired {
		s.remove(snap, domain.ReasonExpired)
	}
	return len(expired)
}

func (s *MemoryStore) remove(snap domain.Session, reason string) {
	is := s.shardFor(string(snap.ID))
	is.mu.Lock()
	delete(is.sessions, snap.ID)
	is.mu.Unlock()

	key := snap.Participants.Key()
	ps := s.shardFor(key)
	ps.mu.Lock()
	if ps.pairs[key] == snap.ID {
		delete(ps.pairs, key)
	}
	ps.mu.Unlock()

	log.Info().Str("module", "core.store").Str("sid", string(snap.ID)).Str("reason", reason).Msg("session removed")
	if s.onEvict != nil {
		s.onEvict(snap, reason)
	}
}

func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

var _ SessionStore = (*MemoryStore)(nil)
