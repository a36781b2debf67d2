package rtc

import (
	"errors"
	"testing"
	"time"

	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

func newPair(t *testing.T) (*Connection, *Connection) {
	t.Helper()
	api := NewAPI(NewLoggerFactory(zerolog.WarnLevel))
	a, err := NewConnection(api, webrtc.Configuration{}, "caller")
	if err != nil {
		t.Fatalf("new caller: %v", err)
	}
	b, err := NewConnection(api, webrtc.Configuration{}, "callee")
	if err != nil {
		t.Fatalf("new callee: %v", err)
	}
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

func TestConnection_NegotiatesThroughPayloads(t *testing.T) {
	caller, callee := newPair(t)

	// Candidates may arrive before the remote description; both sides must hold them.
	caller.OnLocalCandidate(func(ci domain.CandidateInit) {
		if err := callee.AddRemoteCandidate(ci); err != nil {
			t.Errorf("callee add candidate: %v", err)
		}
	})
	callee.OnLocalCandidate(func(ci domain.CandidateInit) {
		if err := caller.AddRemoteCandidate(ci); err != nil {
			t.Errorf("caller add candidate: %v", err)
		}
	})

	offer, err := caller.CreateOffer()
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	answer, err := callee.AcceptOffer(offer)
	if err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	if err := caller.AcceptAnswer(answer); err != nil {
		t.Fatalf("accept answer: %v", err)
	}

	for name, ch := range map[string]<-chan struct{}{"caller": caller.Connected(), "callee": callee.Connected()} {
		select {
		case <-ch:
		case <-time.After(10 * time.Second):
			t.Fatalf("%s never connected", name)
		}
	}

	_ = caller.Close()
	select {
	case <-caller.Disconnected():
	case <-time.After(5 * time.Second):
		t.Fatal("caller did not report disconnect after Close")
	}
}

func TestConnection_RejectsWrongDescriptionType(t *testing.T) {
	caller, callee := newPair(t)
	offer, err := caller.CreateOffer()
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if err := callee.AcceptAnswer(offer); !errors.Is(err, ErrUnexpectedSDPType) {
		t.Fatalf("AcceptAnswer(offer) = %v", err)
	}
	if _, err := callee.AcceptOffer("not json"); err == nil {
		t.Fatal("garbage offer accepted")
	}
}
