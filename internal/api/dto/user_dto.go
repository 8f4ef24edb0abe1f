package dto

import (
	"time"

	"github.com/spec-kit/watchworthy-auth/internal/domain"
)

// UserRegisterRequest payload for new users.
type UserRegisterRequest struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

// UserLoginRequest payload for login.
type UserLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"access_token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewAuthResponse builds a bearer token response.
func NewAuthResponse(token string, expiresAt time.Time) AuthResponse {
	return AuthResponse{Token: token, TokenType: "bearer", ExpiresAt: expiresAt}
}

// PasswordResetRequest asks for a reset token.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetResponse carries the reset token until mail delivery exists.
type PasswordResetResponse struct {
	ResetToken string    `json:"reset_token"`
	ExpiresAt  time.Time `json:"expires_at"`
	Message    string    `json:"message"`
}

// PasswordResetConfirmRequest sets a new password with a reset token.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// PasswordChangeRequest changes the caller's password.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// AccountUpdateRequest is the administrator's account patch.
type AccountUpdateRequest struct {
	Role   *domain.Role       `json:"role"`
	Status *domain.UserStatus `json:"status"`
}

// StatusUpdateRequest changes the caller's own status.
type StatusUpdateRequest struct {
	Status domain.UserStatus `json:"status"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID        string            `json:"user_id"`
	Username  string            `json:"username"`
	Email     string            `json:"email"`
	Role      domain.Role       `json:"role"`
	Status    domain.UserStatus `json:"status"`
	Penalties []string          `json:"penalties"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewUserResponse hides the password hash.
func NewUserResponse(u *domain.User) UserResponse {
	penalties := u.PenaltyIDs
	if penalties == nil {
		penalties = []string{}
	}
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Status:    u.Status,
		Penalties: penalties,
		CreatedAt: u.CreatedAt,
	}
}

// ClaimsResponse is the whoami view of a verified token.
type ClaimsResponse struct {
	UserID    string            `json:"user_id"`
	Username  string            `json:"username,omitempty"`
	Role      domain.Role       `json:"role"`
	Status    domain.UserStatus `json:"status"`
	IssuedAt  time.Time         `json:"issued_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}
