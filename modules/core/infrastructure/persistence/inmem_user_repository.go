package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/core/domain/aggregates/user"
	"github.com/iota-uz/bothub/modules/core/infrastructure/persistence/models"
	"github.com/iota-uz/bothub/pkg/memstore"
)

const usersTable = "users"

type InmemUserRepository struct {
	store *memstore.Store
}

func NewInmemUserRepository(store *memstore.Store) *InmemUserRepository {
	return &InmemUserRepository{store: store}
}

func (r *InmemUserRepository) GetByUID(ctx context.Context, uid uuid.UUID) (user.User, error) {
	var out user.User
	err := r.store.InTx(ctx, func(ctx context.Context) error {
		tx, _ := memstore.UseTx(ctx)
		m, ok := memstore.Get[models.User](tx, usersTable, uid.String())
		if !ok {
			return user.ErrUserNotFound.WithMessage("user %s not found", uid)
		}
		u, err := ToDomainUser(m)
		out = u
		return err
	})
	return out, err
}

func (r *InmemUserRepository) GetByUIDs(ctx context.Context, uids []uuid.UUID) ([]user.User, error) {
	wanted := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		wanted[uid.String()] = struct{}{}
	}
	return r.filter(ctx, func(m models.User) bool {
		_, ok := wanted[m.ID]
		return ok
	})
}

func (r *InmemUserRepository) FindByEmail(ctx context.Context, email string) (user.User, error) {
	email = user.NormalizeEmail(email)
	users, err := r.filter(ctx, func(m models.User) bool {
		return user.NormalizeEmail(m.Email) == email
	})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, user.ErrUserNotFound.WithMessage("user with email %s not found", email)
	}
	return users[0], nil
}

func (r *InmemUserRepository) Create(ctx context.Context, u user.User) (user.User, error) {
	err := r.store.InTx(ctx, func(ctx context.Context) error {
		tx, _ := memstore.UseTx(ctx)
		tx.Put(usersTable, u.UID().String(), ToDBUser(u))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *InmemUserRepository) filter(ctx context.Context, keep func(models.User) bool) ([]user.User, error) {
	var out []user.User
	err := r.store.InTx(ctx, func(ctx context.Context) error {
		tx, _ := memstore.UseTx(ctx)
		for _, m := range memstore.Filter(tx, usersTable, keep) {
			u, err := ToDomainUser(m)
			if err != nil {
				return err
			}
			out = append(out, u)
		}
		return nil
	})
	return out, err
}
