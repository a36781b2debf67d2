package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/CallRelay/internal/core"
	"github.com/dkeye/CallRelay/internal/domain"
	"go.uber.org/mock/gomock"
)

var (
	pair12    = domain.Participants{DoctorID: 1, PatientID: 2}
	localCand = domain.CandidateInit{Candidate: "candidate:local 1 udp 1 10.0.0.1 5000 typ host"}
	remote    = domain.Candidate{
		CandidateInit: domain.CandidateInit{Candidate: "candidate:remote 1 udp 1 10.0.0.2 6000 typ host"},
		Index:         1,
		Side:          domain.SideCallee,
	}
)

type fakePeer struct {
	mu       sync.Mutex
	onCand   func(domain.CandidateInit)
	remote   []domain.CandidateInit
	offer    string
	answer   string
	closed   bool
	emitWith domain.CandidateInit

	connected    chan struct{}
	disconnected chan struct{}
	connOnce     sync.Once
	discOnce     sync.Once
}

func newFakePeer() *fakePeer {
	return &fakePeer{
		emitWith:     localCand,
		connected:    make(chan struct{}),
		disconnected: make(chan struct{}),
	}
}

func (p *fakePeer) CreateOffer() (string, error) {
	p.emit(p.emitWith)
	return "offer-sdp", nil
}

func (p *fakePeer) AcceptOffer(offer string) (string, error) {
	p.mu.Lock()
	p.offer = offer
	p.mu.Unlock()
	p.emit(p.emitWith)
	return "answer-sdp", nil
}

func (p *fakePeer) AcceptAnswer(answer string) error {
	p.mu.Lock()
	p.answer = answer
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) AddRemoteCandidate(c domain.CandidateInit) error {
	p.mu.Lock()
	p.remote = append(p.remote, c)
	p.mu.Unlock()
	p.connect()
	return nil
}

func (p *fakePeer) OnLocalCandidate(fn func(domain.CandidateInit)) {
	p.mu.Lock()
	p.onCand = fn
	p.mu.Unlock()
}

func (p *fakePeer) emit(c domain.CandidateInit) {
	p.mu.Lock()
	fn := p.onCand
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (p *fakePeer) connect()    { p.connOnce.Do(func() { close(p.connected) }) }
func (p *fakePeer) disconnect() { p.discOnce.Do(func() { close(p.disconnected) }) }

func (p *fakePeer) Connected() <-chan struct{}    { return p.connected }
func (p *fakePeer) Disconnected() <-chan struct{} { return p.disconnected }

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.disconnect()
	return nil
}

func fastConfig(initiator bool) Config {
	return Config{
		Participants: pair12,
		Initiator:    initiator,
		PollInterval: 2 * time.Millisecond,
		MaxBackoff:   10 * time.Millisecond,
		EndOnExit:    true,
	}
}

func runWithTimeout(t *testing.T, a *Agent) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.Run(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("agent did not finish")
	}
	return err
}

func TestAgent_InitiatorNegotiates(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := NewMockSignaler(ctrl)
	peer := newFakePeer()

	sig.EXPECT().CreateSession(gomock.Any(), pair12).Return(domain.SessionID("s1"), nil)
	sig.EXPECT().SubmitOffer(gomock.Any(), domain.SessionID("s1"), "offer-sdp").Return(nil)
	gomock.InOrder(
		sig.EXPECT().FetchAnswer(gomock.Any(), domain.SessionID("s1")).Return("", false, nil),
		sig.EXPECT().FetchAnswer(gomock.Any(), domain.SessionID("s1")).Return("answer-sdp", true, nil),
	)
	sig.EXPECT().SubmitCandidate(gomock.Any(), domain.SessionID("s1"), localCand).Return(1, nil)
	gomock.InOrder(
		sig.EXPECT().FetchCandidates(gomock.Any(), domain.SessionID("s1"), 0).
			Return([]domain.Candidate{remote}, 1, nil),
		sig.EXPECT().FetchCandidates(gomock.Any(), domain.SessionID("s1"), 1).
			Return([]domain.Candidate{}, 1, nil).AnyTimes(),
	)
	sig.EXPECT().MarkActive(gomock.Any(), domain.SessionID("s1")).
		DoAndReturn(func(context.Context, domain.SessionID) error {
			peer.disconnect()
			return nil
		})
	sig.EXPECT().EndSession(gomock.Any(), domain.SessionID("s1")).Return(nil)

	a := New(fastConfig(true), sig, peer)
	if err := runWithTimeout(t, a); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peer.answer != "answer-sdp" {
		t.Fatalf("answer applied = %q", peer.answer)
	}
	if len(peer.remote) != 1 || peer.remote[0] != remote.CandidateInit {
		t.Fatalf("remote candidates = %+v", peer.remote)
	}
	if !peer.closed {
		t.Fatal("peer not closed on exit")
	}
}

func TestAgent_ResponderBuffersEarlyCandidates(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := NewMockSignaler(ctrl)
	peer := newFakePeer()
	early := domain.CandidateInit{Candidate: "candidate:early"}

	gomock.InOrder(
		sig.EXPECT().FindSession(gomock.Any(), pair12).Return(domain.Session{}, core.ErrNotFound),
		sig.EXPECT().FindSession(gomock.Any(), pair12).Return(domain.Session{ID: "s2", State: domain.StateOfferSet}, nil),
	)
	sig.EXPECT().FetchOffer(gomock.Any(), domain.SessionID("s2")).Return("offer-sdp", true, nil)
	sig.EXPECT().SubmitAnswer(gomock.Any(), domain.SessionID("s2"), "answer-sdp").Return(nil)
	gomock.InOrder(
		sig.EXPECT().SubmitCandidate(gomock.Any(), domain.SessionID("s2"), early).Return(1, nil),
		sig.EXPECT().SubmitCandidate(gomock.Any(), domain.SessionID("s2"), localCand).Return(2, nil),
	)
	// The caller hangs up: the session disappears under us.
	sig.EXPECT().FetchCandidates(gomock.Any(), domain.SessionID("s2"), 0).
		Return(nil, 0, &APIError{Status: 404, Code: core.CodeNotFound, err: core.ErrNotFound})
	sig.EXPECT().EndSession(gomock.Any(), domain.SessionID("s2")).Return(nil)

	a := New(fastConfig(false), sig, peer)
	peer.emit(early)

	err := runWithTimeout(t, a)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Run error = %v, want not found", err)
	}
	if peer.offer != "offer-sdp" {
		t.Fatalf("offer applied = %q", peer.offer)
	}
}

func TestAgent_SubmitConflicts(t *testing.T) {
	tests := []struct {
		name      string
		identical bool
		wantErr   error
	}{
		{"identical resubmission is success", true, core.ErrNotFound},
		{"different payload is a protocol error", false, ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			sig := NewMockSignaler(ctrl)
			peer := newFakePeer()

			conflict := &APIError{Status: 409, Code: core.CodeAlreadySet,
				err: &core.PayloadConflictError{Kind: "offer", Identical: tt.identical}}

			sig.EXPECT().CreateSession(gomock.Any(), pair12).Return(domain.SessionID("s3"), nil)
			sig.EXPECT().SubmitCandidate(gomock.Any(), gomock.Any(), gomock.Any()).Return(1, nil).AnyTimes()
			sig.EXPECT().SubmitOffer(gomock.Any(), domain.SessionID("s3"), "offer-sdp").Return(conflict)
			if tt.identical {
				sig.EXPECT().FetchAnswer(gomock.Any(), domain.SessionID("s3")).Return("", false, core.ErrNotFound)
			}
			sig.EXPECT().EndSession(gomock.Any(), domain.SessionID("s3")).Return(nil)

			err := runWithTimeout(t, New(fastConfig(true), sig, peer))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAgent_DuplicateReusesFreshSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := NewMockSignaler(ctrl)
	peer := newFakePeer()

	sig.EXPECT().CreateSession(gomock.Any(), pair12).
		Return(domain.SessionID(""), &core.DuplicateSessionError{Existing: "old"})
	sig.EXPECT().FindSession(gomock.Any(), pair12).
		Return(domain.Session{ID: "old", State: domain.StateCreated, InitiatorRole: domain.RoleDoctor}, nil)
	sig.EXPECT().SubmitCandidate(gomock.Any(), domain.SessionID("old"), localCand).Return(1, nil).AnyTimes()
	sig.EXPECT().SubmitOffer(gomock.Any(), domain.SessionID("old"), "offer-sdp").Return(nil)
	sig.EXPECT().FetchAnswer(gomock.Any(), domain.SessionID("old")).Return("", false, core.ErrEnded)
	sig.EXPECT().EndSession(gomock.Any(), domain.SessionID("old")).Return(nil)

	a := New(fastConfig(true), sig, peer)
	err := runWithTimeout(t, a)
	if !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("Run error = %v", err)
	}
	if a.SessionID() != "old" {
		t.Fatalf("session = %q, want reuse of old", a.SessionID())
	}
}

func TestAgent_DuplicateStaleSession(t *testing.T) {
	stale := domain.Session{ID: "old", State: domain.StateAnswered, HasOffer: true, HasAnswer: true}

	t.Run("surfaced without ReplaceStale", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sig := NewMockSignaler(ctrl)
		sig.EXPECT().CreateSession(gomock.Any(), pair12).
			Return(domain.SessionID(""), &core.DuplicateSessionError{Existing: "old"})
		sig.EXPECT().FindSession(gomock.Any(), pair12).Return(stale, nil)

		err := runWithTimeout(t, New(fastConfig(true), sig, newFakePeer()))
		if !errors.Is(err, core.ErrDuplicateActiveSession) {
			t.Fatalf("Run error = %v", err)
		}
	})

	t.Run("replaced with ReplaceStale", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sig := NewMockSignaler(ctrl)
		cfg := fastConfig(true)
		cfg.ReplaceStale = true

		gomock.InOrder(
			sig.EXPECT().CreateSession(gomock.Any(), pair12).
				Return(domain.SessionID(""), &core.DuplicateSessionError{Existing: "old"}),
			sig.EXPECT().FindSession(gomock.Any(), pair12).Return(stale, nil),
			sig.EXPECT().EndSession(gomock.Any(), domain.SessionID("old")).Return(nil),
			sig.EXPECT().CreateSession(gomock.Any(), pair12).Return(domain.SessionID("new"), nil),
		)
		sig.EXPECT().SubmitCandidate(gomock.Any(), domain.SessionID("new"), gomock.Any()).Return(1, nil).AnyTimes()
		sig.EXPECT().SubmitOffer(gomock.Any(), domain.SessionID("new"), "offer-sdp").Return(core.ErrInvalidState)
		sig.EXPECT().EndSession(gomock.Any(), domain.SessionID("new")).Return(nil)

		err := runWithTimeout(t, New(cfg, sig, newFakePeer()))
		if !errors.Is(err, core.ErrInvalidState) {
			t.Fatalf("Run error = %v", err)
		}
	})
}

func TestAgent_RetriesTransientErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := NewMockSignaler(ctrl)
	peer := newFakePeer()
	unavailable := &APIError{Status: 503, Code: "", Message: "upstream"}
	limited := &APIError{Status: 429, Code: "RATE_LIMITED"}

	gomock.InOrder(
		sig.EXPECT().FetchOffer(gomock.Any(), domain.SessionID("s4")).Return("", false, unavailable),
		sig.EXPECT().FetchOffer(gomock.Any(), domain.SessionID("s4")).Return("", false, limited),
		sig.EXPECT().FetchOffer(gomock.Any(), domain.SessionID("s4")).Return("offer-sdp", true, nil),
	)
	sig.EXPECT().SubmitAnswer(gomock.Any(), domain.SessionID("s4"), "answer-sdp").Return(nil)
	sig.EXPECT().SubmitCandidate(gomock.Any(), domain.SessionID("s4"), localCand).Return(1, nil)
	sig.EXPECT().FetchCandidates(gomock.Any(), domain.SessionID("s4"), 0).
		DoAndReturn(func(context.Context, domain.SessionID, int) ([]domain.Candidate, int, error) {
			peer.disconnect()
			return nil, 0, nil
		}).MinTimes(1)
	sig.EXPECT().EndSession(gomock.Any(), domain.SessionID("s4")).Return(nil)

	cfg := fastConfig(false)
	cfg.SessionID = "s4"
	if err := runWithTimeout(t, New(cfg, sig, peer)); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestAgent_WatchHintsWakePolling(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := NewMockSignaler(ctrl)
	w := NewMockWatcher(ctrl)
	peer := newFakePeer()
	events := make(chan domain.Event, 1)

	both := struct {
		*MockSignaler
		*MockWatcher
	}{sig, w}

	w.EXPECT().Watch(gomock.Any(), domain.SessionID("s5")).Return((<-chan domain.Event)(events), nil)
	sig.EXPECT().SubmitCandidate(gomock.Any(), domain.SessionID("s5"), gomock.Any()).Return(1, nil).AnyTimes()
	gomock.InOrder(
		sig.EXPECT().FetchOffer(gomock.Any(), domain.SessionID("s5")).DoAndReturn(
			func(context.Context, domain.SessionID) (string, bool, error) {
				events <- domain.Event{Type: domain.EventOffer, SessionID: "s5", State: domain.StateOfferSet}
				return "", false, nil
			}),
		sig.EXPECT().FetchOffer(gomock.Any(), domain.SessionID("s5")).Return("", false, core.ErrNotFound),
	)
	sig.EXPECT().EndSession(gomock.Any(), domain.SessionID("s5")).Return(nil)

	cfg := fastConfig(false)
	cfg.SessionID = "s5"
	cfg.Watch = true
	// A long poll interval proves the second fetch was woken by the event.
	cfg.PollInterval = time.Minute
	cfg.MaxBackoff = time.Minute

	start := time.Now()
	err := runWithTimeout(t, New(cfg, both, peer))
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Run error = %v", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Fatal("poll was not woken by watch event")
	}
}

func TestAgent_ConnectedCallOutlivesSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := NewMockSignaler(ctrl)
	peer := newFakePeer()

	var active atomic.Bool
	reaped := make(chan struct{})
	var reapOnce sync.Once

	sig.EXPECT().CreateSession(gomock.Any(), pair12).Return(domain.SessionID("s6"), nil)
	sig.EXPECT().SubmitOffer(gomock.Any(), domain.SessionID("s6"), "offer-sdp").Return(nil)
	sig.EXPECT().FetchAnswer(gomock.Any(), domain.SessionID("s6")).Return("answer-sdp", true, nil)
	sig.EXPECT().SubmitCandidate(gomock.Any(), domain.SessionID("s6"), localCand).Return(1, nil)
	sig.EXPECT().FetchCandidates(gomock.Any(), domain.SessionID("s6"), 0).
		Return([]domain.Candidate{remote}, 1, nil)
	sig.EXPECT().FetchCandidates(gomock.Any(), domain.SessionID("s6"), 1).
		DoAndReturn(func(context.Context, domain.SessionID, int) ([]domain.Candidate, int, error) {
			if !active.Load() {
				return nil, 1, nil
			}
			reapOnce.Do(func() { close(reaped) })
			return nil, 0, core.ErrNotFound
		}).MinTimes(1)
	sig.EXPECT().MarkActive(gomock.Any(), domain.SessionID("s6")).
		DoAndReturn(func(context.Context, domain.SessionID) error {
			active.Store(true)
			return nil
		})
	sig.EXPECT().EndSession(gomock.Any(), domain.SessionID("s6")).Return(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- New(fastConfig(true), sig, peer).Run(ctx) }()

	select {
	case <-reaped:
	case <-ctx.Done():
		t.Fatal("session was never reported gone")
	}
	select {
	case err := <-done:
		t.Fatalf("Run returned %v while the call was still connected", err)
	case <-time.After(50 * time.Millisecond):
	}
	peer.mu.Lock()
	closed := peer.closed
	peer.mu.Unlock()
	if closed {
		t.Fatal("peer closed while connected")
	}

	peer.disconnect()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("agent did not stop after disconnect")
	}
}

func TestFatal(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{core.ErrNotFound, true},
		{core.ErrEnded, true},
		{&APIError{Status: 401, Code: "UNAUTHENTICATED"}, true},
		{&APIError{Status: 400, Code: "BAD_REQUEST"}, true},
		{&APIError{Status: 429, Code: "RATE_LIMITED"}, false},
		{&APIError{Status: 502}, false},
		{errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		if got := fatal(tt.err); got != tt.want {
			t.Errorf("fatal(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
