package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/watchworthy-auth/internal/auth"
	"github.com/spec-kit/watchworthy-auth/internal/clock"
	"github.com/spec-kit/watchworthy-auth/internal/domain"
	"github.com/spec-kit/watchworthy-auth/internal/events"
	"github.com/spec-kit/watchworthy-auth/internal/repository"
)

// selfServiceRoles are the roles an account may pick at registration.
var selfServiceRoles = []domain.Role{domain.RoleGuest, domain.RoleMember, domain.RoleCritic}

// AuthService coordinates registration, login and password flows.
type AuthService struct {
	users      repository.UserDirectory
	tokens     *auth.TokenAuthority
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
	bcryptCost int
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserDirectory repository.UserDirectory
	Tokens        *auth.TokenAuthority
	Dispatcher    events.Dispatcher
	Clock         clock.Clock
	Logger        *zap.Logger
	BcryptCost    int
}

// RegisterInput describes a new account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     domain.Role
}

// Session is an issued bearer token with its claims.
type Session struct {
	Token  string
	Claims domain.Claims
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserDirectory,
		tokens:     deps.Tokens,
		dispatcher: deps.Dispatcher,
		clock:      clk,
		logger:     logger,
		bcryptCost: deps.BcryptCost,
	}
}

// Register creates an active account. Only guest, member and critic may be self-assigned.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	if username == "" {
		return nil, fmt.Errorf("%w: username required", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	if input.Password == "" {
		return nil, fmt.Errorf("%w: password required", domain.ErrInvalidInput)
	}

	role := input.Role
	if role == "" {
		role = domain.RoleMember
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
	}
	if !isSelfServiceRole(role) {
		return nil, fmt.Errorf("%w: role %s cannot be self-assigned", domain.ErrForbidden, role)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(role)))
	s.publish(ctx, events.EventUserRegistered, user.ID, events.UserRegisteredPayload{
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	})
	return user, nil
}

// Login checks credentials and issues a session token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.User, Session, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, Session{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, Session{}, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, Session{}, domain.ErrInvalidCredentials
	}
	if !user.IsActive() {
		return nil, Session{}, fmt.Errorf("%w: %w", domain.ErrForbidden, domain.ErrAccountInactive)
	}

	token, claims, err := s.tokens.Issue(domain.Identity{SubjectID: user.ID, Role: user.Role, Status: user.Status})
	if err != nil {
		return nil, Session{}, err
	}
	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return user, Session{Token: token, Claims: claims}, nil
}

// Logout revokes the presented token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// Refresh issues a new token carrying the directory's current role and status for the subject.
func (s *AuthService) Refresh(ctx context.Context, token string) (Session, error) {
	claims, err := s.tokens.Verify(ctx, token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.users.GetByID(ctx, claims.SubjectID)
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive() {
		return Session{}, fmt.Errorf("%w: %w", domain.ErrForbidden, domain.ErrAccountInactive)
	}
	fresh, freshClaims, err := s.tokens.Issue(domain.Identity{SubjectID: user.ID, Role: user.Role, Status: user.Status})
	if err != nil {
		return Session{}, err
	}
	return Session{Token: fresh, Claims: freshClaims}, nil
}

// WhoAmI loads the directory record behind claims.
func (s *AuthService) WhoAmI(ctx context.Context, claims domain.Claims) (*domain.User, error) {
	return s.users.GetByID(ctx, claims.SubjectID)
}

// RequestPasswordReset creates a reset token for the account registered with email.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", time.Time{}, err
	}
	token, record, err := s.tokens.CreateResetToken(ctx, user.ID)
	if err != nil {
		return "", time.Time{}, err
	}

	s.logger.Info("password reset requested", zap.String("user_id", user.ID))
	s.publish(ctx, events.EventPasswordResetRequested, user.ID, events.PasswordResetPayload{
		Email:     user.Email,
		Token:     token,
		ExpiresAt: record.ExpiresAt,
	})
	return token, record.ExpiresAt, nil
}

// ConfirmPasswordReset consumes the reset token and sets the new password.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: password required", domain.ErrInvalidInput)
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}

	subjectID, err := s.tokens.VerifyResetToken(ctx, token)
	if err != nil {
		return err
	}
	if err := s.setPasswordHash(ctx, subjectID, hash); err != nil {
		return err
	}
	s.publish(ctx, events.EventPasswordChanged, subjectID, nil)
	return nil
}

// ChangePassword verifies the current password before storing the new one.
func (s *AuthService) ChangePassword(ctx context.Context, subjectID, currentPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: password required", domain.ErrInvalidInput)
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}

	_, err = s.users.Update(ctx, subjectID, func(u *domain.User) error {
		if err := auth.ComparePassword(u.PasswordHash, currentPassword); err != nil {
			return domain.ErrInvalidCredentials
		}
		u.PasswordHash = hash
		u.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("password changed", zap.String("user_id", subjectID))
	s.publish(ctx, events.EventPasswordChanged, subjectID, nil)
	return nil
}

func (s *AuthService) setPasswordHash(ctx context.Context, subjectID, hash string) error {
	_, err := s.users.Update(ctx, subjectID, func(u *domain.User) error {
		u.PasswordHash = hash
		u.UpdatedAt = s.clock.Now()
		return nil
	})
	return err
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, subjectID string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: subjectID,
		ActorID:   subjectID,
		Timestamp: s.clock.Now(),
		Payload:   payload,
	})
}

func isSelfServiceRole(role domain.Role) bool {
	for _, r := range selfServiceRoles {
		if r == role {
			return true
		}
	}
	return false
}
