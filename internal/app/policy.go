package app

import (
	"errors"

	"github.com/dkeye/CallRelay/internal/domain"
)

var ErrForbidden = errors.New("principal is not a participant of this session")

// Policy decides whether a principal may act on a pair of participants.
type Policy interface {
	Allow(pr domain.Principal, p domain.Participants) bool
}

// ParticipantPolicy admits only the bound doctor and patient.
type ParticipantPolicy struct{}

func (ParticipantPolicy) Allow(pr domain.Principal, p domain.Participants) bool {
	return p.Includes(pr)
}

// OpenPolicy admits everyone. Meant for local development only.
type OpenPolicy struct{}

func (OpenPolicy) Allow(domain.Principal, domain.Participants) bool { return true }
