package app

import (
	"errors"
	"fmt"

	"github.com/dkeye/CallRelay/internal/core"
	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// CodeForbidden is the wire code for ErrForbidden.
const CodeForbidden = "FORBIDDEN"

// ErrorCode maps service errors to wire codes; "" for unexpected errors.
func ErrorCode(err error) string {
	if errors.Is(err, ErrForbidden) {
		return CodeForbidden
	}
	if code := core.Code(err); code != "" {
		return code
	}
	return "INTERNAL"
}

// CandidatePage is one incremental poll result. Next is the cursor for the following poll.
type CandidatePage struct {
	Candidates []domain.Candidate `json:"candidates"`
	Next       int                `json:"next"`
}

// SignalingService enforces the negotiation protocol on top of a SessionStore.
// It holds no per-request state; everything lives in the stored session.
type SignalingService struct {
	Store    core.SessionStore
	Policy   Policy
	Watchers *Registry
	Metrics  *Metrics
}

func NewSignalingService(store core.SessionStore, policy Policy, watchers *Registry, m *Metrics) *SignalingService {
	if policy == nil {
		policy = ParticipantPolicy{}
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	if watchers == nil {
		watchers = NewRegistry(m)
	}
	return &SignalingService{Store: store, Policy: policy, Watchers: watchers, Metrics: m}
}

// EvictHook builds the store hook that reports removed sessions to watchers and metrics.
func EvictHook(watchers *Registry, m *Metrics) core.EvictFunc {
	return func(s domain.Session, reason string) {
		if m != nil {
			m.sessionEnded(reason)
		}
		if watchers != nil {
			watchers.CloseSession(s.ID, domain.Event{
				Type:      domain.EventEnded,
				SessionID: s.ID,
				State:     domain.StateEnded,
				Reason:    reason,
			})
		}
	}
}

// authorize loads the session and checks the principal is bound to it.
func (svc *SignalingService) authorize(op string, pr domain.Principal, id domain.SessionID) (domain.Session, error) {
	sess, err := svc.Store.Get(id)
	if err != nil {
		svc.Metrics.reject(op, err)
		return domain.Session{}, err
	}
	if !svc.Policy.Allow(pr, sess.Participants) {
		log.Warn().Str("module", "app.signaling").Str("op", op).Str("sid", string(id)).
			Str("principal", pr.String()).Msg("forbidden")
		svc.Metrics.reject(op, ErrForbidden)
		return domain.Session{}, ErrForbidden
	}
	return sess, nil
}

func (svc *SignalingService) fail(op string, id domain.SessionID, err error) error {
	svc.Metrics.reject(op, err)
	log.Debug().Err(err).Str("module", "app.signaling").Str("op", op).Str("sid", string(id)).Msg("rejected")
	return err
}

func (svc *SignalingService) publish(t domain.EventType, id domain.SessionID, state domain.State) {
	svc.Watchers.Publish(domain.Event{Type: t, SessionID: id, State: state})
}

// CreateSession opens a session for the pair with the principal as initiator.
func (svc *SignalingService) CreateSession(pr domain.Principal, p domain.Participants) (domain.Session, error) {
	if !svc.Policy.Allow(pr, p) {
		svc.Metrics.reject("create", ErrForbidden)
		return domain.Session{}, ErrForbidden
	}
	sess, err := svc.Store.Create(p, pr.Role)
	if err != nil {
		return domain.Session{}, svc.fail("create", "", err)
	}
	svc.Metrics.sessionCreated()
	log.Info().Str("module", "app.signaling").Str("sid", string(sess.ID)).
		Str("initiator", pr.String()).Str("pair", p.Key()).Msg("session created")
	return sess, nil
}

// FindActive returns the live session for a pair, if any.
func (svc *SignalingService) FindActive(pr domain.Principal, p domain.Participants) (domain.Session, error) {
	if !svc.Policy.Allow(pr, p) {
		svc.Metrics.reject("find", ErrForbidden)
		return domain.Session{}, ErrForbidden
	}
	sess, err := svc.Store.FindActive(p)
	if err != nil {
		return domain.Session{}, svc.fail("find", "", err)
	}
	return sess, nil
}

func (svc *SignalingService) GetSession(pr domain.Principal, id domain.SessionID) (domain.Session, error) {
	return svc.authorize("get", pr, id)
}

// SubmitOffer stores the initiator's session description. Only legal in CREATED.
func (svc *SignalingService) SubmitOffer(pr domain.Principal, id domain.SessionID, payload string) error {
	if _, err := svc.authorize("offer", pr, id); err != nil {
		return err
	}
	if err := svc.Store.SetOffer(id, payload); err != nil {
		return svc.fail("offer", id, err)
	}
	svc.Metrics.transition(domain.StateOfferSet)
	svc.publish(domain.EventOffer, id, domain.StateOfferSet)
	log.Info().Str("module", "app.signaling").Str("sid", string(id)).Msg("offer stored")
	return nil
}

// FetchOffer returns the offer once present; ok=false means "not ready, poll again".
func (svc *SignalingService) FetchOffer(pr domain.Principal, id domain.SessionID) (string, bool, error) {
	if _, err := svc.authorize("fetch_offer", pr, id); err != nil {
		return "", false, err
	}
	offer, ok, err := svc.Store.GetOffer(id)
	if err != nil {
		return "", false, svc.fail("fetch_offer", id, err)
	}
	return offer, ok, nil
}

// SubmitAnswer stores the counterpart's session description. Only legal in OFFER_SET.
func (svc *SignalingService) SubmitAnswer(pr domain.Principal, id domain.SessionID, payload string) error {
	if _, err := svc.authorize("answer", pr, id); err != nil {
		return err
	}
	if err := svc.Store.SetAnswer(id, payload); err != nil {
		return svc.fail("answer", id, err)
	}
	svc.Metrics.transition(domain.StateAnswered)
	svc.publish(domain.EventAnswer, id, domain.StateAnswered)
	log.Info().Str("module", "app.signaling").Str("sid", string(id)).Msg("answer stored")
	return nil
}

// FetchAnswer has the same not-ready semantics as FetchOffer. The initiator
// seeing the answer counts towards implicit activation.
func (svc *SignalingService) FetchAnswer(pr domain.Principal, id domain.SessionID) (string, bool, error) {
	sess, err := svc.authorize("fetch_answer", pr, id)
	if err != nil {
		return "", false, err
	}
	answer, ok, err := svc.Store.GetAnswer(id)
	if err != nil {
		return "", false, svc.fail("fetch_answer", id, err)
	}
	if ok {
		svc.observe(id, core.Observation{Side: sess.SideOf(pr), AnswerSeen: true})
	}
	return answer, ok, nil
}

// SubmitCandidate appends a candidate tagged with the principal's side.
func (svc *SignalingService) SubmitCandidate(pr domain.Principal, id domain.SessionID, c domain.CandidateInit) (int, error) {
	sess, err := svc.authorize("candidate", pr, id)
	if err != nil {
		return 0, err
	}
	side := sess.SideOf(pr)
	idx, err := svc.Store.AppendCandidate(id, side, c)
	if err != nil {
		return 0, svc.fail("candidate", id, err)
	}
	svc.Metrics.candidate()
	svc.Watchers.Publish(domain.Event{
		Type:      domain.EventCandidate,
		SessionID: id,
		State:     sess.State,
		Index:     idx,
		Side:      side,
	})
	return idx, nil
}

// FetchCandidates returns candidates appended after since, in submission order.
func (svc *SignalingService) FetchCandidates(pr domain.Principal, id domain.SessionID, since int) (CandidatePage, error) {
	sess, err := svc.authorize("fetch_candidates", pr, id)
	if err != nil {
		return CandidatePage{}, err
	}
	list, err := svc.Store.ListCandidates(id, since)
	if err != nil {
		return CandidatePage{}, svc.fail("fetch_candidates", id, err)
	}
	page := CandidatePage{Candidates: list, Next: since}
	if page.Next < 0 {
		page.Next = 0
	}
	side := sess.SideOf(pr)
	remote := false
	for _, c := range list {
		page.Next = c.Index
		if c.Side != side {
			remote = true
		}
	}
	if remote {
		svc.observe(id, core.Observation{Side: side, RemoteCandidates: true})
	}
	return page, nil
}

// MarkActive moves ANSWERED to ACTIVE on a client's report of a connected peer.
// Advisory only: repeated calls on an ACTIVE session are fine.
func (svc *SignalingService) MarkActive(pr domain.Principal, id domain.SessionID) (domain.Session, error) {
	if _, err := svc.authorize("active", pr, id); err != nil {
		return domain.Session{}, err
	}
	changed, err := svc.Store.MarkActive(id)
	if err != nil {
		return domain.Session{}, svc.fail("active", id, err)
	}
	if changed {
		svc.activated(id, "explicit")
	}
	return svc.Store.Get(id)
}

// EndSession ends and releases the session. Unknown or already ended ids are not errors.
func (svc *SignalingService) EndSession(pr domain.Principal, id domain.SessionID) error {
	sess, err := svc.Store.Get(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !svc.Policy.Allow(pr, sess.Participants) {
		svc.Metrics.reject("end", ErrForbidden)
		return ErrForbidden
	}
	if _, err := svc.Store.End(id); err != nil && !errors.Is(err, core.ErrNotFound) {
		return svc.fail("end", id, err)
	}
	log.Info().Str("module", "app.signaling").Str("sid", string(id)).Str("by", pr.String()).Msg("session ended")
	return nil
}

// Watch binds a push connection to a session the principal belongs to.
func (svc *SignalingService) Watch(pr domain.Principal, id domain.SessionID, conn core.SignalConnection) (WatcherID, domain.Session, error) {
	sess, err := svc.authorize("watch", pr, id)
	if err != nil {
		return "", domain.Session{}, err
	}
	wid := svc.Watchers.Bind(id, pr, conn)
	// The session may have been removed between the check and the bind, after
	// its watchers were closed.
	sess, err = svc.Store.Get(id)
	if err == nil && sess.State == domain.StateEnded {
		err = fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if err != nil {
		svc.Watchers.Unbind(id, wid)
		return "", domain.Session{}, svc.fail("watch", id, err)
	}
	return wid, sess, nil
}

func (svc *SignalingService) Unwatch(id domain.SessionID, wid WatcherID) {
	svc.Watchers.Unbind(id, wid)
}

func (svc *SignalingService) observe(id domain.SessionID, o core.Observation) {
	activated, err := svc.Store.RecordObservation(id, o)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.signaling").Str("sid", string(id)).Msg("observation dropped")
		return
	}
	if activated {
		svc.activated(id, "implicit")
	}
}

func (svc *SignalingService) activated(id domain.SessionID, how string) {
	svc.Metrics.transition(domain.StateActive)
	svc.publish(domain.EventState, id, domain.StateActive)
	log.Info().Str("module", "app.signaling").Str("sid", string(id)).Str("how", how).Msg("session active")
}
