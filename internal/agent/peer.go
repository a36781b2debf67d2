package agent

import "github.com/dkeye/CallRelay/internal/domain"

// Peer is the local end of the media connection.
type Peer interface {
	CreateOffer() (string, error)
	AcceptOffer(offer string) (string, error)
	AcceptAnswer(answer string) error
	AddRemoteCandidate(c domain.CandidateInit) error
	OnLocalCandidate(fn func(domain.CandidateInit))
	Connected() <-chan struct{}
	Disconnected() <-chan struct{}
	Close() error
}
