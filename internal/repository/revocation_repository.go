package repository

import (
	"context"
	"time"

	"github.com/spec-kit/watchworthy-auth/internal/domain"
	"github.com/spec-kit/watchworthy-auth/internal/store"
)

// RevocationRepository persists the revocation set.
type RevocationRepository interface {
	Add(ctx context.Context, entry domain.RevokedToken) (bool, error)
	Contains(ctx context.Context, fingerprint string) (bool, error)
	Prune(ctx context.Context, now time.Time) (int, error)
}

type revocationRepository struct {
	table *store.Table[domain.RevokedToken]
}

// NewRevocationRepository returns a repository over the revoked_tokens collection.
func NewRevocationRepository(coll store.Collection[domain.RevokedToken]) RevocationRepository {
	return &revocationRepository{table: store.NewTable(coll)}
}

// Add inserts entry unless its fingerprint is already present. It reports whether it was added.
func (r *revocationRepository) Add(ctx context.Context, entry domain.RevokedToken) (bool, error) {
	added := false
	err := r.table.Mutate(ctx, func(entries []domain.RevokedToken) ([]domain.RevokedToken, bool, error) {
		for _, e := range entries {
			if e.Fingerprint == entry.Fingerprint {
				return entries, false, nil
			}
		}
		added = true
		return append(entries, entry), true, nil
	})
	return added, err
}

func (r *revocationRepository) Contains(ctx context.Context, fingerprint string) (bool, error) {
	found := false
	err := r.table.View(ctx, func(entries []domain.RevokedToken) error {
		for _, e := range entries {
			if e.Fingerprint == fingerprint {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

// Prune drops entries whose token has passed its natural expiry; such tokens fail verification anyway.
func (r *revocationRepository) Prune(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	err := r.table.Mutate(ctx, func(entries []domain.RevokedToken) ([]domain.RevokedToken, bool, error) {
		kept := entries[:0:0]
		for _, e := range entries {
			if now.After(e.ExpiresAt) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		return kept, removed > 0, nil
	})
	return removed, err
}
