package domain

import "time"

// State is the lifecycle state of a refresh token record.
type State string

const (
	// StateActive means the token may be rotated exactly once.
	StateActive State = "active"
	// StateRotated means the token was consumed and a successor exists.
	// Presenting a rotated token again is treated as theft.
	StateRotated State = "rotated"
	// StateRevoked means the token was invalidated by logout, logout-all, or
	// a family-wide revocation cascade.
	StateRevoked State = "revoked"
)

// Record is a persisted refresh token. TokenID is the SHA-256 hash of the raw
// secret; the secret itself is never stored. All tokens descending from one
// login share a FamilyID so a compromise can revoke the whole lineage.
type Record struct {
	TokenID          string
	FamilyID         string
	SubjectID        string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	State            State
	SuccessorTokenID string // set when State is rotated; points at the replacement record
}

// Expired reports whether the record's expiry has passed at the given time.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
