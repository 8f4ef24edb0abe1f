package repository

import (
	"context"
	"strings"

	"github.com/spec-kit/watchworthy-auth/internal/domain"
	"github.com/spec-kit/watchworthy-auth/internal/store"
)

// UserDirectory is the subject store consulted by the gate and mutated by the penalty ledger.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListAll(ctx context.Context) ([]domain.User, error)
	SaveAll(ctx context.Context, users []domain.User) error
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, id string, fn func(*domain.User) error) (*domain.User, error)
	LinkPenalty(ctx context.Context, userID, penaltyID string) error
	UnlinkPenalty(ctx context.Context, userID, penaltyID string) error
}

type userDirectory struct {
	table *store.Table[domain.User]
}

// NewUserDirectory returns a directory backed by the users collection.
func NewUserDirectory(coll store.Collection[domain.User]) UserDirectory {
	return &userDirectory{table: store.NewTable(coll)}
}

func (r *userDirectory) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.find(ctx, func(u domain.User) bool { return u.ID == id })
}

func (r *userDirectory) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.find(ctx, func(u domain.User) bool { return u.Username == username })
}

func (r *userDirectory) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.find(ctx, func(u domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *userDirectory) find(ctx context.Context, match func(domain.User) bool) (*domain.User, error) {
	var found *domain.User
	err := r.table.View(ctx, func(users []domain.User) error {
		for i := range users {
			if match(users[i]) {
				user := users[i]
				found = &user
				return nil
			}
		}
		return domain.ErrUserNotFound
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *userDirectory) ListAll(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	err := r.table.View(ctx, func(users []domain.User) error {
		out = users
		return nil
	})
	return out, err
}

func (r *userDirectory) SaveAll(ctx context.Context, users []domain.User) error {
	return r.table.Mutate(ctx, func([]domain.User) ([]domain.User, bool, error) {
		return users, true, nil
	})
}

func (r *userDirectory) Create(ctx context.Context, user *domain.User) error {
	return r.table.Mutate(ctx, func(users []domain.User) ([]domain.User, bool, error) {
		for _, u := range users {
			if u.ID == user.ID || u.Username == user.Username || (user.Email != "" && strings.EqualFold(u.Email, user.Email)) {
				return nil, false, domain.ErrUserExists
			}
		}
		if user.PenaltyIDs == nil {
			user.PenaltyIDs = []string{}
		}
		return append(users, *user), true, nil
	})
}

// Update applies fn to the user with id inside the directory's write lock.
func (r *userDirectory) Update(ctx context.Context, id string, fn func(*domain.User) error) (*domain.User, error) {
	var updated *domain.User
	err := r.table.Mutate(ctx, func(users []domain.User) ([]domain.User, bool, error) {
		for i := range users {
			if users[i].ID != id {
				continue
			}
			if err := fn(&users[i]); err != nil {
				return nil, false, err
			}
			u := users[i]
			updated = &u
			return users, true, nil
		}
		return nil, false, domain.ErrUserNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *userDirectory) LinkPenalty(ctx context.Context, userID, penaltyID string) error {
	return r.mutateOne(ctx, userID, func(u *domain.User) bool {
		return u.LinkPenalty(penaltyID)
	})
}

func (r *userDirectory) UnlinkPenalty(ctx context.Context, userID, penaltyID string) error {
	return r.mutateOne(ctx, userID, func(u *domain.User) bool {
		return u.UnlinkPenalty(penaltyID)
	})
}

func (r *userDirectory) mutateOne(ctx context.Context, id string, fn func(*domain.User) bool) error {
	return r.table.Mutate(ctx, func(users []domain.User) ([]domain.User, bool, error) {
		for i := range users {
			if users[i].ID == id {
				return users, fn(&users[i]), nil
			}
		}
		return nil, false, domain.ErrUserNotFound
	})
}
