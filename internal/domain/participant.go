// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrUnknownRole        = errors.New("unknown role")
	ErrInvalidParticipant = errors.New("invalid participant id")
)

type (
	DoctorID  int64
	PatientID int64
)

// Role is the participant kind of a caller. Used for authorization only.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDoctor, RolePatient:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleDoctor {
		return RolePatient
	}
	return RoleDoctor
}

// Participants is the (doctor, patient) pair bound to a session.
type Participants struct {
	DoctorID  DoctorID  `json:"doctorId"`
	PatientID PatientID `json:"patientId"`
}

func NewParticipants(doctorID, patientID int64) (Participants, error) {
	if doctorID <= 0 || patientID <= 0 {
		return Participants{}, ErrInvalidParticipant
	}
	return Participants{DoctorID: DoctorID(doctorID), PatientID: PatientID(patientID)}, nil
}

// Key identifies the pair in indexes.
func (p Participants) Key() string {
	return strconv.FormatInt(int64(p.DoctorID), 10) + ":" + strconv.FormatInt(int64(p.PatientID), 10)
}

// Includes reports whether the principal is one of the pair.
func (p Participants) Includes(pr Principal) bool {
	switch pr.Role {
	case RoleDoctor:
		return int64(p.DoctorID) == pr.ID
	case RolePatient:
		return int64(p.PatientID) == pr.ID
	}
	return false
}

// IDFor returns the id the pair holds for role.
func (p Participants) IDFor(r Role) int64 {
	if r == RolePatient {
		return int64(p.PatientID)
	}
	return int64(p.DoctorID)
}
