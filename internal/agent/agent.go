package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/CallRelay/internal/app"
	"github.com/dkeye/CallRelay/internal/core"
	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrProtocol = errors.New("signaling protocol violation")

type Config struct {
	Participants domain.Participants
	// Initiator creates the session and sends the offer.
	Initiator bool
	// SessionID lets a responder join a known session instead of looking it up by pair.
	SessionID domain.SessionID

	PollInterval time.Duration
	MaxBackoff   time.Duration

	// ReplaceStale ends a blocking session that is past CREATED and creates a new one.
	ReplaceStale bool
	// EndOnExit ends the session when Run returns.
	EndOnExit bool
	// Watch subscribes to push events when the signaler supports it.
	Watch bool
}

// Agent drives one side of a negotiation by polling the relay.
type Agent struct {
	cfg  Config
	sig  Signaler
	peer Peer

	wake chan struct{}

	mu      sync.Mutex
	sid     domain.SessionID
	pending []domain.CandidateInit

	cursor int
	side   domain.Side
}

func New(cfg Config, sig Signaler, peer Peer) *Agent {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxBackoff < cfg.PollInterval {
		cfg.MaxBackoff = 16 * cfg.PollInterval
	}
	side := domain.SideCallee
	if cfg.Initiator {
		side = domain.SideCaller
	}
	a := &Agent{cfg: cfg, sig: sig, peer: peer, side: side, wake: make(chan struct{}, 1)}
	peer.OnLocalCandidate(a.queueCandidate)
	return a
}

// SessionID is empty until the session is created or found.
func (a *Agent) SessionID() domain.SessionID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sid
}

func (a *Agent) queueCandidate(c domain.CandidateInit) {
	a.mu.Lock()
	a.pending = append(a.pending, c)
	a.mu.Unlock()
	a.kick()
}

func (a *Agent) kick() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Run negotiates and then keeps trickling candidates until the peer
// disconnects, the session ends or ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	defer a.shutdown()

	sid, err := a.establish(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.sid = sid
	a.mu.Unlock()
	log.Info().Str("module", "agent").Str("sid", string(sid)).Str("side", string(a.side)).Msg("session established")

	if a.cfg.Watch {
		a.startWatch(ctx, sid)
	}

	if a.cfg.Initiator {
		err = a.offer(ctx, sid)
	} else {
		err = a.answer(ctx, sid)
	}
	if err != nil {
		return err
	}
	return a.exchange(ctx, sid)
}

func (a *Agent) establish(ctx context.Context) (domain.SessionID, error) {
	if !a.cfg.Initiator {
		if a.cfg.SessionID != "" {
			return a.cfg.SessionID, nil
		}
		var sid domain.SessionID
		err := a.poll(ctx, "find", func() (bool, error) {
			s, err := a.sig.FindSession(ctx, a.cfg.Participants)
			if errors.Is(err, core.ErrNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			sid = s.ID
			return true, nil
		})
		return sid, err
	}

	sid, err := a.sig.CreateSession(ctx, a.cfg.Participants)
	if !errors.Is(err, core.ErrDuplicateActiveSession) {
		return sid, err
	}
	existing, ferr := a.sig.FindSession(ctx, a.cfg.Participants)
	if ferr != nil {
		return "", fmt.Errorf("lookup blocking session: %w", ferr)
	}
	if existing.State == domain.StateCreated && !existing.HasOffer {
		log.Info().Str("module", "agent").Str("sid", string(existing.ID)).Msg("reusing existing session")
		return existing.ID, nil
	}
	if !a.cfg.ReplaceStale {
		return "", err
	}
	log.Warn().Str("module", "agent").Str("sid", string(existing.ID)).Str("state", string(existing.State)).
		Msg("ending stale session")
	if err := a.sig.EndSession(ctx, existing.ID); err != nil {
		return "", fmt.Errorf("end stale session: %w", err)
	}
	return a.sig.CreateSession(ctx, a.cfg.Participants)
}

func (a *Agent) offer(ctx context.Context, sid domain.SessionID) error {
	offer, err := a.peer.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := a.poll(ctx, "submit_offer", func() (bool, error) {
		return true, settle(a.sig.SubmitOffer(ctx, sid, offer))
	}); err != nil {
		return err
	}

	var answer string
	if err := a.poll(ctx, "fetch_answer", func() (bool, error) {
		var ok bool
		var err error
		answer, ok, err = a.sig.FetchAnswer(ctx, sid)
		return ok, err
	}); err != nil {
		return err
	}
	if err := a.peer.AcceptAnswer(answer); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	return nil
}

func (a *Agent) answer(ctx context.Context, sid domain.SessionID) error {
	var offer string
	if err := a.poll(ctx, "fetch_offer", func() (bool, error) {
		var ok bool
		var err error
		offer, ok, err = a.sig.FetchOffer(ctx, sid)
		return ok, err
	}); err != nil {
		return err
	}
	answer, err := a.peer.AcceptOffer(offer)
	if err != nil {
		return fmt.Errorf("apply offer: %w", err)
	}
	return a.poll(ctx, "submit_answer", func() (bool, error) {
		return true, settle(a.sig.SubmitAnswer(ctx, sid, answer))
	})
}

// settle treats a rejected resubmission of the same payload as success. A
// different stored payload means another client negotiated on this session.
func settle(err error) error {
	var conflict *core.PayloadConflictError
	if !errors.As(err, &conflict) {
		return err
	}
	if conflict.Identical {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrProtocol, err)
}

func (a *Agent) exchange(ctx context.Context, sid domain.SessionID) error {
	connected := a.peer.Connected()
	live := false
	delay := a.cfg.PollInterval
	for {
		a.flush(ctx, sid)
		if err := a.pullCandidates(ctx, sid); err != nil {
			switch {
			case live && signalingOver(err):
				return a.hold(ctx, sid, err)
			case fatal(err):
				return err
			}
			delay = a.backoff(delay)
			log.Warn().Err(err).Str("module", "agent").Str("sid", string(sid)).Dur("retry_in", delay).Msg("candidate poll failed")
		} else {
			delay = a.cfg.PollInterval
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-connected:
			connected = nil
			live = true
			log.Info().Str("module", "agent").Str("sid", string(sid)).Msg("peer connected")
			if err := a.sig.MarkActive(ctx, sid); err != nil {
				switch {
				case signalingOver(err):
					return a.hold(ctx, sid, err)
				case fatal(err):
					return err
				}
				log.Warn().Err(err).Str("module", "agent").Str("sid", string(sid)).Msg("mark active failed")
			}
		case <-a.peer.Disconnected():
			log.Info().Str("module", "agent").Str("sid", string(sid)).Msg("peer disconnected")
			return nil
		case <-a.wake:
		case <-time.After(delay):
		}
	}
}

// signalingOver reports that the relay no longer holds the session. Once the
// peers are connected that only ends signaling, not the call.
func signalingOver(err error) bool {
	return errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrInvalidState)
}

// hold keeps a connected call up after the relay dropped its session, until
// the peer disconnects or ctx is done.
func (a *Agent) hold(ctx context.Context, sid domain.SessionID, cause error) error {
	log.Info().Err(cause).Str("module", "agent").Str("sid", string(sid)).Msg("signaling finished, call continues")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.peer.Disconnected():
		log.Info().Str("module", "agent").Str("sid", string(sid)).Msg("peer disconnected")
		return nil
	}
}

func (a *Agent) pullCandidates(ctx context.Context, sid domain.SessionID) error {
	list, next, err := a.sig.FetchCandidates(ctx, sid, a.cursor)
	if err != nil {
		return err
	}
	for _, c := range list {
		if c.Side == a.side {
			continue
		}
		if err := a.peer.AddRemoteCandidate(c.CandidateInit); err != nil {
			log.Warn().Err(err).Str("module", "agent").Int("index", c.Index).Msg("remote candidate rejected")
		}
	}
	if next > a.cursor {
		a.cursor = next
	}
	return nil
}

// flush submits buffered local candidates in gathering order. Transient
// failures keep the remainder for the next round.
func (a *Agent) flush(ctx context.Context, sid domain.SessionID) {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()

	for i, c := range batch {
		_, err := a.sig.SubmitCandidate(ctx, sid, c)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrCapExceeded):
			log.Warn().Str("module", "agent").Str("sid", string(sid)).Msg("candidate cap reached, dropping")
		default:
			if !fatal(err) {
				a.mu.Lock()
				a.pending = append(append([]domain.CandidateInit{}, batch[i:]...), a.pending...)
				a.mu.Unlock()
			}
			log.Warn().Err(err).Str("module", "agent").Str("sid", string(sid)).Msg("submit candidate failed")
			return
		}
	}
}

// poll calls fn until it reports done, backing off on errors and waking early on push events.
func (a *Agent) poll(ctx context.Context, op string, fn func() (bool, error)) error {
	delay := a.cfg.PollInterval
	for {
		if sid := a.SessionID(); sid != "" {
			a.flush(ctx, sid)
		}
		done, err := fn()
		switch {
		case err != nil && fatal(err):
			return fmt.Errorf("%s: %w", op, err)
		case err != nil:
			delay = a.backoff(delay)
			log.Warn().Err(err).Str("module", "agent").Str("op", op).Dur("retry_in", delay).Msg("poll failed")
		case done:
			return nil
		default:
			delay = a.cfg.PollInterval
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.wake:
		case <-time.After(delay):
		}
	}
}

func (a *Agent) backoff(d time.Duration) time.Duration {
	d *= 2
	if d > a.cfg.MaxBackoff {
		d = a.cfg.MaxBackoff
	}
	return d
}

// fatal errors end the run; everything else is retried.
func fatal(err error) bool {
	var apiErr *APIError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrInvalidState),
		errors.Is(err, core.ErrAlreadySet), errors.Is(err, app.ErrForbidden):
		return true
	case errors.As(err, &apiErr):
		return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != 429
	}
	return false
}

func (a *Agent) startWatch(ctx context.Context, sid domain.SessionID) {
	w, ok := a.sig.(Watcher)
	if !ok {
		return
	}
	events, err := w.Watch(ctx, sid)
	if err != nil {
		log.Warn().Err(err).Str("module", "agent").Str("sid", string(sid)).Msg("watch unavailable, polling only")
		return
	}
	go func() {
		for ev := range events {
			log.Debug().Str("module", "agent").Str("sid", string(sid)).Str("event", string(ev.Type)).Msg("push hint")
			a.kick()
		}
	}()
}

func (a *Agent) shutdown() {
	sid := a.SessionID()
	if a.cfg.EndOnExit && sid != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := a.sig.EndSession(ctx, sid); err != nil {
			log.Warn().Err(err).Str("module", "agent").Str("sid", string(sid)).Msg("end session failed")
		}
		cancel()
	}
	if err := a.peer.Close(); err != nil {
		log.Debug().Err(err).Str("module", "agent").Msg("peer close")
	}
}
