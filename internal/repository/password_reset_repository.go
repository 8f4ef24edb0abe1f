package repository

import (
	"context"
	"time"

	"github.com/spec-kit/watchworthy-auth/internal/domain"
	"github.com/spec-kit/watchworthy-auth/internal/store"
)

// PasswordResetRepository manages single-use reset grants.
type PasswordResetRepository interface {
	Create(ctx context.Context, token domain.ResetToken) error
	Consume(ctx context.Context, id string, now time.Time) (*domain.ResetToken, error)
}

type passwordResetRepository struct {
	table *store.Table[domain.ResetToken]
}

// NewPasswordResetRepository returns a repository over the reset_tokens collection.
func NewPasswordResetRepository(coll store.Collection[domain.ResetToken]) PasswordResetRepository {
	return &passwordResetRepository{table: store.NewTable(coll)}
}

func (r *passwordResetRepository) Create(ctx context.Context, token domain.ResetToken) error {
	return r.table.Mutate(ctx, func(tokens []domain.ResetToken) ([]domain.ResetToken, bool, error) {
		return append(tokens, token), true, nil
	})
}

// Consume checks and stamps the token in one locked read-modify-write, so concurrent callers
// observe exactly one success. A consumed token reports consumed even when also past expiry.
func (r *passwordResetRepository) Consume(ctx context.Context, id string, now time.Time) (*domain.ResetToken, error) {
	var consumed *domain.ResetToken
	err := r.table.Mutate(ctx, func(tokens []domain.ResetToken) ([]domain.ResetToken, bool, error) {
		for i := range tokens {
			if tokens[i].ID != id {
				continue
			}
			switch {
			case tokens[i].Consumed():
				return nil, false, domain.ErrResetTokenConsumed
			case now.After(tokens[i].ExpiresAt):
				return nil, false, domain.ErrResetTokenExpired
			}
			stamp := now
			tokens[i].ConsumedAt = &stamp
			token := tokens[i]
			consumed = &token
			return tokens, true, nil
		}
		return nil, false, domain.ErrResetTokenInvalid
	})
	if err != nil {
		return nil, err
	}
	return consumed, nil
}
