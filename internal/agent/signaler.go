package agent

//go:generate mockgen -source=signaler.go -destination=mock_signaler.go -package=agent

import (
	"context"

	"github.com/dkeye/CallRelay/internal/domain"
)

// Signaler is the relay as seen by one participant. Errors carry the core
// sentinels so callers can use errors.Is regardless of transport.
type Signaler interface {
	CreateSession(ctx context.Context, p domain.Participants) (domain.SessionID, error)
	FindSession(ctx context.Context, p domain.Participants) (domain.Session, error)
	SubmitOffer(ctx context.Context, id domain.SessionID, offer string) error
	FetchOffer(ctx context.Context, id domain.SessionID) (string, bool, error)
	SubmitAnswer(ctx context.Context, id domain.SessionID, answer string) error
	FetchAnswer(ctx context.Context, id domain.SessionID) (string, bool, error)
	SubmitCandidate(ctx context.Context, id domain.SessionID, c domain.CandidateInit) (int, error)
	FetchCandidates(ctx context.Context, id domain.SessionID, since int) ([]domain.Candidate, int, error)
	MarkActive(ctx context.Context, id domain.SessionID) error
	EndSession(ctx context.Context, id domain.SessionID) error
}

// Watcher is implemented by signalers that can push session events.
type Watcher interface {
	Watch(ctx context.Context, id domain.SessionID) (<-chan domain.Event, error)
}
