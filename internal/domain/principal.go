package domain

import "strconv"

// Principal is the authenticated caller as reported by the auth gateway.
// No transport or lifecycle logic here.
type Principal struct {
	Role Role  `json:"role"`
	ID   int64 `json:"id"`
}

func NewPrincipal(role string, id int64) (Principal, error) {
	r, err := ParseRole(role)
	if err != nil {
		return Principal{}, err
	}
	if id <= 0 {
		return Principal{}, ErrInvalidParticipant
	}
	return Principal{Role: r, ID: id}, nil
}

func (p Principal) String() string {
	return string(p.Role) + "/" + strconv.FormatInt(p.ID, 10)
}
