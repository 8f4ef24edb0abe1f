package domain

import (
	"errors"
	"time"
)

// Identity is the subject data embedded into a session token.
type Identity struct {
	SubjectID string
	Role      Role
	Status    UserStatus
}

// Claims are the attributes carried by a verified session token.
type Claims struct {
	SubjectID string     `json:"user_id"`
	Role      Role       `json:"role"`
	Status    UserStatus `json:"status"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Identity strips the timestamps from the claims.
func (c Claims) Identity() Identity {
	return Identity{SubjectID: c.SubjectID, Role: c.Role, Status: c.Status}
}

// RevokedToken is an entry in the revocation set. The token itself is stored as a sha256 fingerprint.
type RevokedToken struct {
	Fingerprint string    `json:"fingerprint"`
	SubjectID   string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	RevokedAt   time.Time `json:"revoked_at"`
}

// Key implements store.Record.
func (r RevokedToken) Key() string { return r.Fingerprint }

// Validate implements store.Record.
func (r RevokedToken) Validate() error {
	if r.Fingerprint == "" {
		return errors.New("fingerprint required")
	}
	if r.ExpiresAt.IsZero() {
		return errors.New("expires_at required")
	}
	return nil
}

// ResetToken is a single-use password reset grant.
type ResetToken struct {
	ID         string     `json:"token_id"`
	SubjectID  string     `json:"user_id"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Key implements store.Record.
func (r ResetToken) Key() string { return r.ID }

// Validate implements store.Record.
func (r ResetToken) Validate() error {
	switch {
	case r.ID == "":
		return errors.New("token_id required")
	case r.SubjectID == "":
		return errors.New("user_id required")
	case r.ExpiresAt.IsZero():
		return errors.New("expires_at required")
	}
	return nil
}

// Consumed reports whether the token was already used.
func (r ResetToken) Consumed() bool {
	return r.ConsumedAt != nil
}
