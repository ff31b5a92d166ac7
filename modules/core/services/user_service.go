package services

import (
	"context"
	"errors"

	"github.com/iota-uz/bothub/modules/core/domain/aggregates/user"
)

// TxFunc runs fn inside a transaction of the backing store.
type TxFunc func(ctx context.Context, fn func(context.Context) error) error

type UserService struct {
	repo user.Repository
	inTx TxFunc
}

func NewUserService(repo user.Repository, inTx TxFunc) *UserService {
	return &UserService{
		repo: repo,
		inTx: inTx,
	}
}

// Repository exposes the lookup other modules resolve participants with.
func (s *UserService) Repository() user.Repository {
	return s.repo
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var out user.User
	err := s.inTx(ctx, func(ctx context.Context) error {
		u, err := s.repo.FindByEmail(ctx, email)
		out = u
		return err
	})
	return out, err
}

// Ensure returns the user registered under email, creating it first when
// there is none.
func (s *UserService) Ensure(ctx context.Context, email string) (user.User, bool, error) {
	var (
		out     user.User
		created bool
	)
	err := s.inTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.FindByEmail(ctx, email)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, user.ErrUserNotFound) {
			return err
		}
		u, err := s.repo.Create(ctx, user.New(email))
		if err != nil {
			return err
		}
		out, created = u, true
		return nil
	})
	return out, created, err
}
