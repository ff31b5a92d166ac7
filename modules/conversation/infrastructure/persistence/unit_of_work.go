package persistence

import (
	"context"

	"github.com/iota-uz/bothub/modules/conversation/domain/aggregates/conversation"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/memstore"
)

type unitOfWork struct {
	conversations conversation.Repository
	messages      conversation.MessageRepository
}

func (u *unitOfWork) Conversations() conversation.Repository      { return u.conversations }
func (u *unitOfWork) Messages() conversation.MessageRepository { return u.messages }

type PgUnitOfWorkFactory struct {
	uow *unitOfWork
}

func NewPgUnitOfWorkFactory() *PgUnitOfWorkFactory {
	return &PgUnitOfWorkFactory{uow: &unitOfWork{
		conversations: NewConversationRepository(),
		messages:      NewMessageRepository(),
	}}
}

func (f *PgUnitOfWorkFactory) Do(ctx context.Context, fn func(ctx context.Context, uow conversation.UnitOfWork) error) error {
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
			conversations: NewInmemConversationRepository(store),
			messages:      NewInmemMessageRepository(store),
		},
	}
}

func (f *InmemUnitOfWorkFactory) Do(ctx context.Context, fn func(ctx context.Context, uow conversation.UnitOfWork) error) error {
	return f.store.InTx(ctx, func(txCtx context.Context) error {
		return fn(txCtx, f.uow)
	})
}
