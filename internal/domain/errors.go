package domain

import "errors"

var (
	ErrAuthInvalid         = errors.New("token invalid")
	ErrAuthExpired         = errors.New("token expired")
	ErrAuthRevoked         = errors.New("token revoked")
	ErrResetTokenInvalid   = errors.New("reset token invalid")
	ErrResetTokenExpired   = errors.New("reset token expired")
	ErrResetTokenConsumed  = errors.New("reset token already used")
	ErrPenaltyNotFound     = errors.New("penalty not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountInactive     = errors.New("account is deactivated")
	ErrActionRestricted    = errors.New("action restricted")
	ErrInvalidPenaltyInput = errors.New("invalid penalty")
	ErrInvalidInput        = errors.New("invalid input")
)

// RestrictionError carries the message shown to a subject blocked by an active penalty.
type RestrictionError struct {
	Message string
}

func (e *RestrictionError) Error() string {
	return e.Message
}

func (e *RestrictionError) Unwrap() error {
	return ErrActionRestricted
}
