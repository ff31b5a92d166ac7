package persistence

import (
	"context"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/memstore"
)

type unitOfWork struct {
	bots         bot.Repository
	participants bot.ParticipantRepository
	services     bot.ServiceRepository
	documents    bot.DocumentRepository
}

func (u *unitOfWork) Bots() bot.Repository                      { return u.bots }
func (u *unitOfWork) Participants() bot.ParticipantRepository { return u.participants }
func (u *unitOfWork) Services() bot.ServiceRepository         { return u.services }
func (u *unitOfWork) Documents() bot.DocumentRepository       { return u.documents }

type PgUnitOfWorkFactory struct {
	uow *unitOfWork
}

func NewPgUnitOfWorkFactory() *PgUnitOfWorkFactory {
	return &PgUnitOfWorkFactory{uow: &unitOfWork{
		bots:         NewBotRepository(),
		participants: NewParticipantRepository(),
		services:     NewServiceRepository(),
		documents:    NewDocumentRepository(),
	}}
}

func (f *PgUnitOfWorkFactory) Do(ctx context.Context, fn func(ctx context.Context, uow bot.UnitOfWork) error) error {
	return composables.InTx(ctx, func(txCtx context.Context) error {
		return fn(txCtx, f.uow)
	})
}

type InmemUnitOfWorkFactory struct {
	store *memstore.Store
	uow   *unitOfWork
}

func NewInmemUnitOfWorkFactory(store *memstore.Store) *InmemUnitOfWorkFactory {
	return &InmemUnitOfWorkFactory{
		store: store,
		uow: &unitOfWork{
			bots:         NewInmemBotRepository(store),
			participants: NewInmemParticipantRepository(store),
			services:     NewInmemServiceRepository(store),
			documents:    NewInmemDocumentRepository(store),
		},
	}
}

func (f *InmemUnitOfWorkFactory) Do(ctx context.Context, fn func(ctx context.Context, uow bot.UnitOfWork) error) error {
	return f.store.InTx(ctx, func(txCtx context.Context) error {
		return fn(txCtx, f.uow)
	})
}
