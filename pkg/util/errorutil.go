package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/watchworthy-auth/internal/domain"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// sentinelMappings is checked in order; more specific kinds come before the generic ones they may be wrapped in.
var sentinelMappings = []struct {
	err    error
	code   string
	status int
}{
	{domain.ErrAuthRevoked, "AUTH_REVOKED", http.StatusUnauthorized},
	{domain.ErrAuthExpired, "AUTH_EXPIRED", http.StatusUnauthorized},
	{domain.ErrAuthInvalid, "AUTH_INVALID", http.StatusUnauthorized},
	{domain.ErrInvalidCredentials, "INVALID_CREDENTIALS", http.StatusUnauthorized},
	{domain.ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized},
	{domain.ErrResetTokenConsumed, "RESET_TOKEN_CONSUMED", http.StatusBadRequest},
	{domain.ErrResetTokenExpired, "RESET_TOKEN_EXPIRED", http.StatusBadRequest},
	{domain.ErrResetTokenInvalid, "RESET_TOKEN_INVALID", http.StatusBadRequest},
	{domain.ErrAccountInactive, "ACCOUNT_INACTIVE", http.StatusForbidden},
	{domain.ErrActionRestricted, "ACTION_RESTRICTED", http.StatusForbidden},
	{domain.ErrForbidden, "FORBIDDEN", http.StatusForbidden},
	{domain.ErrPenaltyNotFound, "PENALTY_NOT_FOUND", http.StatusNotFound},
	{domain.ErrUserNotFound, "USER_NOT_FOUND", http.StatusNotFound},
	{domain.ErrUserExists, "CONFLICT", http.StatusConflict},
	{domain.ErrInvalidPenaltyInput, "VALIDATION_FAILED", http.StatusBadRequest},
	{domain.ErrInvalidInput, "VALIDATION_FAILED", http.StatusBadRequest},
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	var restricted *domain.RestrictionError
	if errors.As(err, &restricted) {
		return &DomainError{
			Code:       "ACTION_RESTRICTED",
			Message:    restricted.Message,
			HTTPStatus: http.StatusForbidden,
			Err:        err,
		}
	}

	for _, m := range sentinelMappings {
		if errors.Is(err, m.err) {
			return &DomainError{Code: m.code, Message: err.Error(), HTTPStatus: m.status}
		}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return &DomainError{
			Code:       codeForStatus(fiberErr.Code),
			Message:    fiberErr.Message,
			HTTPStatus: fiberErr.Code,
		}
	}

	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_FAILED"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "CONFLICT"
	default:
		if status >= 500 {
			return "INTERNAL_ERROR"
		}
		return "REQUEST_FAILED"
	}
}
