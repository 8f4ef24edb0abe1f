package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/spec-kit/watchworthy-auth/internal/domain"
	"github.com/spec-kit/watchworthy-auth/internal/repository"
)

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.Claims, error)
}

// RestrictionChecker reports whether a subject is blocked by an active penalty.
// An empty message means no restriction applies.
type RestrictionChecker interface {
	CheckActiveRestriction(ctx context.Context, subjectID string, blocked []domain.PenaltyType) (string, error)
}

// AccessGate answers whether a caller may perform an action.
type AccessGate struct {
	tokens       TokenVerifier
	users        repository.UserDirectory
	restrictions RestrictionChecker
}

// NewAccessGate composes the token authority, user directory and penalty ledger.
func NewAccessGate(tokens TokenVerifier, users repository.UserDirectory, restrictions RestrictionChecker) *AccessGate {
	return &AccessGate{tokens: tokens, users: users, restrictions: restrictions}
}

// Authenticate verifies the token and requires an active account.
func (g *AccessGate) Authenticate(ctx context.Context, token string) (domain.Claims, error) {
	claims, err := g.tokens.Verify(ctx, token)
	if err != nil {
		return domain.Claims{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	if claims.Status != domain.UserStatusActive {
		return domain.Claims{}, fmt.Errorf("%w: %w", domain.ErrForbidden, domain.ErrAccountInactive)
	}
	return claims, nil
}

// Authorize authenticates the token and requires its role to be one of required.
// An empty required set admits any authenticated caller.
func (g *AccessGate) Authorize(ctx context.Context, token string, required ...domain.Role) (domain.Claims, error) {
	claims, err := g.Authenticate(ctx, token)
	if err != nil {
		return domain.Claims{}, err
	}
	if err := CheckRoles(claims, required...); err != nil {
		return domain.Claims{}, err
	}
	return claims, nil
}

// AuthorizeAtLeast authenticates the token and requires a role at or above min in the hierarchy.
func (g *AccessGate) AuthorizeAtLeast(ctx context.Context, token string, min domain.Role) (domain.Claims, error) {
	claims, err := g.Authenticate(ctx, token)
	if err != nil {
		return domain.Claims{}, err
	}
	if err := CheckAtLeast(claims, min); err != nil {
		return domain.Claims{}, err
	}
	return claims, nil
}

// Principal loads the directory record behind verified claims.
func (g *AccessGate) Principal(ctx context.Context, claims domain.Claims) (*domain.User, error) {
	user, err := g.users.GetByID(ctx, claims.SubjectID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return nil, fmt.Errorf("%w: %w", domain.ErrForbidden, domain.ErrAccountInactive)
	}
	return user, nil
}

// Restrict fails with a *domain.RestrictionError when subjectID has an active penalty of a blocked type.
func (g *AccessGate) Restrict(ctx context.Context, subjectID string, blocked ...domain.PenaltyType) error {
	if g.restrictions == nil || len(blocked) == 0 {
		return nil
	}
	msg, err := g.restrictions.CheckActiveRestriction(ctx, subjectID, blocked)
	if err != nil {
		return err
	}
	if msg != "" {
		return &domain.RestrictionError{Message: msg}
	}
	return nil
}

// CheckRoles is a set-membership test of the claims' role.
func CheckRoles(claims domain.Claims, required ...domain.Role) error {
	if len(required) == 0 {
		return nil
	}
	for _, role := range required {
		if claims.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: insufficient role", domain.ErrForbidden)
}

// CheckAtLeast compares the claims' role against min using the role hierarchy.
func CheckAtLeast(claims domain.Claims, min domain.Role) error {
	if !claims.Role.IsAtLeast(min) {
		return fmt.Errorf("%w: requires %s or above", domain.ErrForbidden, min)
	}
	return nil
}
