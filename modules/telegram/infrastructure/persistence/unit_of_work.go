package persistence

import (
	"context"

	"github.com/iota-uz/bothub/modules/telegram/domain/aggregates/accountlink"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/memstore"
)

type unitOfWork struct {
	links accountlink.Repository
}

func (u unitOfWork) Links() accountlink.Repository { return u.links }

type pgUnitOfWorkFactory struct{}

func NewPgUnitOfWorkFactory() accountlink.UnitOfWorkFactory {
	return pgUnitOfWorkFactory{}
}

func (pgUnitOfWorkFactory) Do(ctx context.Context, fn func(ctx context.Context, uow accountlink.UnitOfWork) error) error {
	uow := unitOfWork{links: NewLinkRepository()}
	return composables.InTx(ctx, func(ctx context.Context) error {
		return fn(ctx, uow)
	})
}

type inmemUnitOfWorkFactory struct {
	store *memstore.Store
}

func NewInmemUnitOfWorkFactory(store *memstore.Store) accountlink.UnitOfWorkFactory {
	return inmemUnitOfWorkFactory{store: store}
}

func (f inmemUnitOfWorkFactory) Do(ctx context.Context, fn func(ctx context.Context, uow accountlink.UnitOfWork) error) error {
	uow := unitOfWork{links: NewInmemLinkRepository(f.store)}
	return f.store.InTx(ctx, func(ctx context.Context) error {
		return fn(ctx, uow)
	})
}
