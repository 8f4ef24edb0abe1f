package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/watchworthy-auth/internal/clock"
	"github.com/spec-kit/watchworthy-auth/internal/domain"
	"github.com/spec-kit/watchworthy-auth/internal/repository"
)

// ResetTokenTTL is the fixed lifetime of a password reset token.
const ResetTokenTTL = 10 * time.Minute

const (
	scopeSession = "session"
	scopeReset   = "password_reset"
)

// tokenClaims is the JWT payload for both session and reset tokens; Scope tells them apart.
type tokenClaims struct {
	Role   domain.Role       `json:"role,omitempty"`
	Status domain.UserStatus `json:"status,omitempty"`
	Scope  string            `json:"scope"`
	jwt.RegisteredClaims
}

// TokenAuthority issues, verifies and revokes session tokens and single-use reset tokens.
type TokenAuthority struct {
	secret  []byte
	ttl     time.Duration
	clock   clock.Clock
	revoked repository.RevocationRepository
	resets  repository.PasswordResetRepository
	logger  *zap.Logger
}

// TokenDependencies bundles the stores and collaborators of the authority.
type TokenDependencies struct {
	Revocations repository.RevocationRepository
	Resets      repository.PasswordResetRepository
	Clock       clock.Clock
	Logger      *zap.Logger
}

// NewTokenAuthority builds an authority signing with secret; session tokens live ttlMinutes.
func NewTokenAuthority(secret string, ttlMinutes int, deps TokenDependencies) *TokenAuthority {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenAuthority{
		secret:  []byte(secret),
		ttl:     time.Duration(ttlMinutes) * time.Minute,
		clock:   clk,
		revoked: deps.Revocations,
		resets:  deps.Resets,
		logger:  logger,
	}
}

// TTL returns the session token lifetime.
func (a *TokenAuthority) TTL() time.Duration {
	return a.ttl
}

// Issue signs a session token for identity.
func (a *TokenAuthority) Issue(identity domain.Identity) (string, domain.Claims, error) {
	switch {
	case identity.SubjectID == "":
		return "", domain.Claims{}, errors.New("issue token: subject required")
	case !identity.Role.IsValid():
		return "", domain.Claims{}, fmt.Errorf("issue token: unknown role %q", identity.Role)
	case !identity.Status.IsValid():
		return "", domain.Claims{}, fmt.Errorf("issue token: unknown status %q", identity.Status)
	}

	now := a.clock.Now().UTC().Truncate(time.Second)
	expiresAt := now.Add(a.ttl)
	claims := &tokenClaims{
		Role:   identity.Role,
		Status: identity.Status,
		Scope:  scopeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.SubjectID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := a.sign(claims)
	if err != nil {
		return "", domain.Claims{}, err
	}
	return signed, domain.Claims{
		SubjectID: identity.SubjectID,
		Role:      identity.Role,
		Status:    identity.Status,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks structure and signature, then revocation, then expiry, in that order.
func (a *TokenAuthority) Verify(ctx context.Context, token string) (domain.Claims, error) {
	claims, err := a.parse(token, scopeSession)
	if err != nil {
		return domain.Claims{}, fmt.Errorf("%w: %v", domain.ErrAuthInvalid, err)
	}
	if !claims.Role.IsValid() || !claims.Status.IsValid() {
		return domain.Claims{}, fmt.Errorf("%w: malformed claims", domain.ErrAuthInvalid)
	}

	revoked, err := a.revoked.Contains(ctx, Fingerprint(token))
	if err != nil {
		return domain.Claims{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return domain.Claims{}, domain.ErrAuthRevoked
	}

	if a.clock.Now().After(claims.ExpiresAt.Time) {
		return domain.Claims{}, domain.ErrAuthExpired
	}

	return domain.Claims{
		SubjectID: claims.Subject,
		Role:      claims.Role,
		Status:    claims.Status,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// Revoke adds the token to the revocation set. Revoking an already revoked or naturally expired
// token is a no-op. Entries past their natural expiry are pruned first.
func (a *TokenAuthority) Revoke(ctx context.Context, token string) error {
	claims, err := a.parse(token, scopeSession)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuthInvalid, err)
	}

	now := a.clock.Now()
	pruned, err := a.revoked.Prune(ctx, now)
	if err != nil {
		return fmt.Errorf("prune revocations: %w", err)
	}
	if pruned > 0 {
		a.logger.Debug("pruned revocation entries", zap.Int("count", pruned))
	}
	if now.After(claims.ExpiresAt.Time) {
		return nil
	}

	added, err := a.revoked.Add(ctx, domain.RevokedToken{
		Fingerprint: Fingerprint(token),
		SubjectID:   claims.Subject,
		ExpiresAt:   claims.ExpiresAt.Time.UTC(),
		RevokedAt:   now,
	})
	if err != nil {
		return fmt.Errorf("store revocation: %w", err)
	}
	if added {
		a.logger.Info("token revoked", zap.String("user_id", claims.Subject), zap.String("jti", claims.ID))
	}
	return nil
}

// Refresh verifies token and issues a new one for the same identity.
func (a *TokenAuthority) Refresh(ctx context.Context, token string) (string, domain.Claims, error) {
	claims, err := a.Verify(ctx, token)
	if err != nil {
		return "", domain.Claims{}, err
	}
	return a.Issue(claims.Identity())
}

// CreateResetToken persists a single-use reset grant for subjectID and returns its bearer value.
func (a *TokenAuthority) CreateResetToken(ctx context.Context, subjectID string) (string, domain.ResetToken, error) {
	if subjectID == "" {
		return "", domain.ResetToken{}, errors.New("create reset token: subject required")
	}

	now := a.clock.Now().UTC().Truncate(time.Second)
	record := domain.ResetToken{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		ExpiresAt: now.Add(ResetTokenTTL),
		CreatedAt: now,
	}
	signed, err := a.sign(&tokenClaims{
		Scope: scopeReset,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        record.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(record.ExpiresAt),
		},
	})
	if err != nil {
		return "", domain.ResetToken{}, err
	}
	if err := a.resets.Create(ctx, record); err != nil {
		return "", domain.ResetToken{}, fmt.Errorf("store reset token: %w", err)
	}
	return signed, record, nil
}

// VerifyResetToken validates and consumes a reset token in one step, returning its subject.
func (a *TokenAuthority) VerifyResetToken(ctx context.Context, token string) (string, error) {
	claims, err := a.parse(token, scopeReset)
	if err != nil || claims.ID == "" {
		return "", domain.ErrResetTokenInvalid
	}

	record, err := a.resets.Consume(ctx, claims.ID, a.clock.Now())
	if err != nil {
		return "", err
	}
	if record.SubjectID != claims.Subject {
		return "", domain.ErrResetTokenInvalid
	}
	a.logger.Info("reset token consumed", zap.String("user_id", record.SubjectID))
	return record.SubjectID, nil
}

func (a *TokenAuthority) sign(claims *tokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// parse checks signature and shape only. Time-based claims are evaluated by the callers so
// revocation can be reported before expiry.
func (a *TokenAuthority) parse(tokenStr, scope string) (*tokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	switch {
	case claims.Scope != scope:
		return nil, fmt.Errorf("unexpected scope %q", claims.Scope)
	case claims.Subject == "":
		return nil, errors.New("missing subject")
	case claims.ExpiresAt == nil || claims.IssuedAt == nil:
		return nil, errors.New("missing timestamps")
	}
	return claims, nil
}

// Fingerprint is the canonical revocation-set value of a token.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
