package repository

import (
	"context"

	"github.com/spec-kit/watchworthy-auth/internal/domain"
	"github.com/spec-kit/watchworthy-auth/internal/store"
)

// PenaltyRepository persists the penalty ledger.
type PenaltyRepository interface {
	Create(ctx context.Context, penalty domain.Penalty) error
	GetByID(ctx context.Context, id string) (*domain.Penalty, error)
	ListBySubject(ctx context.Context, subjectID string) ([]domain.Penalty, error)
	ListAll(ctx context.Context) ([]domain.Penalty, error)
	Update(ctx context.Context, id string, fn func(*domain.Penalty) error) (*domain.Penalty, error)
	UpdateMany(ctx context.Context, fn func(*domain.Penalty) bool) ([]domain.Penalty, error)
	Delete(ctx context.Context, id string) (*domain.Penalty, error)
}

type penaltyRepository struct {
	table *store.Table[domain.Penalty]
}

// NewPenaltyRepository returns a repository over the penalties collection.
func NewPenaltyRepository(coll store.Collection[domain.Penalty]) PenaltyRepository {
	return &penaltyRepository{table: store.NewTable(coll)}
}

func (r *penaltyRepository) Create(ctx context.Context, penalty domain.Penalty) error {
	return r.table.Mutate(ctx, func(penalties []domain.Penalty) ([]domain.Penalty, bool, error) {
		return append(penalties, penalty), true, nil
	})
}

func (r *penaltyRepository) GetByID(ctx context.Context, id string) (*domain.Penalty, error) {
	var found *domain.Penalty
	err := r.table.View(ctx, func(penalties []domain.Penalty) error {
		for i := range penalties {
			if penalties[i].ID == id {
				p := penalties[i]
				found = &p
				return nil
			}
		}
		return domain.ErrPenaltyNotFound
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *penaltyRepository) ListBySubject(ctx context.Context, subjectID string) ([]domain.Penalty, error) {
	out := make([]domain.Penalty, 0)
	err := r.table.View(ctx, func(penalties []domain.Penalty) error {
		for _, p := range penalties {
			if p.SubjectID == subjectID {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (r *penaltyRepository) ListAll(ctx context.Context) ([]domain.Penalty, error) {
	out := make([]domain.Penalty, 0)
	err := r.table.View(ctx, func(penalties []domain.Penalty) error {
		out = append(out, penalties...)
		return nil
	})
	return out, err
}

// Update applies fn to the penalty with id and saves the collection.
func (r *penaltyRepository) Update(ctx context.Context, id string, fn func(*domain.Penalty) error) (*domain.Penalty, error) {
	var updated *domain.Penalty
	err := r.table.Mutate(ctx, func(penalties []domain.Penalty) ([]domain.Penalty, bool, error) {
		for i := range penalties {
			if penalties[i].ID != id {
				continue
			}
			if err := fn(&penalties[i]); err != nil {
				return nil, false, err
			}
			p := penalties[i]
			updated = &p
			return penalties, true, nil
		}
		return nil, false, domain.ErrPenaltyNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateMany applies fn to every penalty and saves once if any call reported a change.
// It returns the changed penalties.
func (r *penaltyRepository) UpdateMany(ctx context.Context, fn func(*domain.Penalty) bool) ([]domain.Penalty, error) {
	var changed []domain.Penalty
	err := r.table.Mutate(ctx, func(penalties []domain.Penalty) ([]domain.Penalty, bool, error) {
		for i := range penalties {
			if fn(&penalties[i]) {
				changed = append(changed, penalties[i])
			}
		}
		return penalties, len(changed) > 0, nil
	})
	return changed, err
}

// Delete removes the penalty and returns the removed record.
func (r *penaltyRepository) Delete(ctx context.Context, id string) (*domain.Penalty, error) {
	var removed *domain.Penalty
	err := r.table.Mutate(ctx, func(penalties []domain.Penalty) ([]domain.Penalty, bool, error) {
		for i := range penalties {
			if penalties[i].ID == id {
				p := penalties[i]
				removed = &p
				return append(penalties[:i:i], penalties[i+1:]...), true, nil
			}
		}
		return nil, false, domain.ErrPenaltyNotFound
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
