package accountlink

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create fails with ErrLinkAlreadyExists when the phone number is taken.
	Create(ctx context.Context, l Link) error
	Update(ctx context.Context, l Link) error
	FindByUID(ctx context.Context, uid uuid.UUID) (Link, error)
	FindByPhone(ctx context.Context, phone string) (Link, error)
	FindByBot(ctx context.Context, botUID uuid.UUID) ([]Link, error)
	// FindActive returns every active link that still holds session material.
	FindActive(ctx context.Context) ([]Link, error)
	DeleteByUID(ctx context.Context, uid uuid.UUID) error
}

type UnitOfWork interface {
	Links() Repository
}

type UnitOfWorkFactory interface {
	Do(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}
