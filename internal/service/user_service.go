package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/watchworthy-auth/internal/clock"
	"github.com/spec-kit/watchworthy-auth/internal/domain"
	"github.com/spec-kit/watchworthy-auth/internal/repository"
)

// UserService manages accounts in the user directory on behalf of administrators.
type UserService struct {
	users  repository.UserDirectory
	clock  clock.Clock
	logger *zap.Logger
}

// UserDependencies encapsulates collaborators for account management.
type UserDependencies struct {
	UserDirectory repository.UserDirectory
	Clock         clock.Clock
	Logger        *zap.Logger
}

// AccountUpdate lists the mutable account attributes; nil fields are left unchanged.
type AccountUpdate struct {
	Role   *domain.Role
	Status *domain.UserStatus
}

// NewUserService constructs the service.
func NewUserService(deps UserDependencies) *UserService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: deps.UserDirectory, clock: clk, logger: logger}
}

func requireAdmin(actor domain.Claims) error {
	if actor.Role != domain.RoleAdministrator {
		return fmt.Errorf("%w: administrator role required", domain.ErrForbidden)
	}
	return nil
}

// List returns every account.
func (s *UserService) List(ctx context.Context, actor domain.Claims) ([]domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.users.ListAll(ctx)
}

// Get returns one account.
func (s *UserService) Get(ctx context.Context, actor domain.Claims, id string) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, id)
}

// UpdateAccount changes the role or status of id. Administrators cannot demote or deactivate themselves.
func (s *UserService) UpdateAccount(ctx context.Context, actor domain.Claims, id string, update AccountUpdate) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if update.Role != nil && !update.Role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, *update.Role)
	}
	if update.Status != nil && !update.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, *update.Status)
	}
	if id == actor.SubjectID {
		if (update.Role != nil && *update.Role != domain.RoleAdministrator) ||
			(update.Status != nil && *update.Status != domain.UserStatusActive) {
			return nil, fmt.Errorf("%w: cannot demote or deactivate own account", domain.ErrForbidden)
		}
	}

	user, err := s.users.Update(ctx, id, func(u *domain.User) error {
		if update.Role != nil {
			u.Role = *update.Role
		}
		if update.Status != nil {
			u.Status = *update.Status
		}
		u.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("account updated",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.String("status", string(user.Status)),
		zap.String("updated_by", actor.SubjectID))
	return user, nil
}

// SetOwnStatus lets a subject deactivate or reactivate its own account.
func (s *UserService) SetOwnStatus(ctx context.Context, subjectID string, status domain.UserStatus) (*domain.User, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: status must be active or inactive", domain.ErrInvalidInput)
	}
	user, err := s.users.Update(ctx, subjectID, func(u *domain.User) error {
		u.Status = status
		u.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("account status changed", zap.String("user_id", subjectID), zap.String("status", string(status)))
	return user, nil
}
