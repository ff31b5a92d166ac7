package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/modules/conversation/domain/aggregates/conversation"
	"github.com/iota-uz/bothub/modules/conversation/infrastructure/persistence"
	"github.com/iota-uz/bothub/pkg/memstore"
)

func start(t *testing.T, botUID uuid.UUID, sender string) conversation.Conversation {
	t.Helper()
	c, err := conversation.Start(uuid.New(), botUID, bot.PlatformTelegram, conversation.Participant{SenderID: sender}, "shop")
	require.NoError(t, err)
	return c
}

func TestInmemConversationRepository_UniqueSender(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	uow := persistence.NewInmemUnitOfWorkFactory(memstore.New())
	botUID := uuid.New()

	err := uow.Do(ctx, func(ctx context.Context, uow conversation.UnitOfWork) error {
		return uow.Conversations().Create(ctx, start(t, botUID, "42"))
	})
	require.NoError(t, err)

	err = uow.Do(ctx, func(ctx context.Context, uow conversation.UnitOfWork) error {
		return uow.Conversations().Create(ctx, start(t, botUID, "42"))
	})
	require.ErrorIs(t, err, conversation.ErrConversationAlreadyExists)

	err = uow.Do(ctx, func(ctx context.Context, uow conversation.UnitOfWork) error {
		return uow.Conversations().Create(ctx, start(t, uuid.New(), "42"))
	})
	require.NoError(t, err)
}

func TestInmemConversationRepository_MessagesOrdered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	uow := persistence.NewInmemUnitOfWorkFactory(memstore.New())
	c := start(t, uuid.New(), "42")
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := conversation.NewMessage(c.UID(), conversation.RoleUser, "first", at)
	tie := conversation.NewMessage(c.UID(), conversation.RoleAssistant, "tie", at)
	earlier := conversation.NewMessage(c.UID(), conversation.RoleUser, "earlier", at.Add(-time.Minute))

	err := uow.Do(ctx, func(ctx context.Context, uow conversation.UnitOfWork) error {
		if err := uow.Conversations().Create(ctx, c); err != nil {
			return err
		}
		for _, m := range []conversation.Message{first, tie, earlier} {
			if err := uow.Messages().Create(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var found conversation.Conversation
	err = uow.Do(ctx, func(ctx context.Context, uow conversation.UnitOfWork) error {
		var err error
		found, err = uow.Conversations().FindBySender(ctx, bot.PlatformTelegram, "42", c.BotUID())
		return err
	})
	require.NoError(t, err)

	msgs := found.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "earlier", msgs[0].Content())
	assert.Equal(t, "first", msgs[1].Content())
	assert.Equal(t, "tie", msgs[2].Content())
	assert.Equal(t, "shop", found.BotNameSnapshot())
}

func TestInmemConversationRepository_RollbackAndNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	uow := persistence.NewInmemUnitOfWorkFactory(store)
	c := start(t, uuid.New(), "7")

	boom := errors.New("boom")
	err := uow.Do(ctx, func(ctx context.Context, uow conversation.UnitOfWork) error {
		if err := uow.Conversations().Create(ctx, c); err != nil {
			return err
		}
		if err := uow.Messages().Create(ctx, conversation.NewMessage(c.UID(), conversation.RoleUser, "hi", time.Time{})); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len("conversations"))
	assert.Equal(t, 0, store.Len("messages"))

	err = uow.Do(ctx, func(ctx context.Context, uow conversation.UnitOfWork) error {
		_, err := uow.Conversations().FindByUID(ctx, c.UID())
		return err
	})
	require.ErrorIs(t, err, conversation.ErrConversationNotFound)

	err = uow.Do(ctx, func(ctx context.Context, uow conversation.UnitOfWork) error {
		return uow.Conversations().Update(ctx, c)
	})
	require.ErrorIs(t, err, conversation.ErrConversationNotFound)
}

func TestInmemConversationRepository_FindByBot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	uow := persistence.NewInmemUnitOfWorkFactory(memstore.New())
	botUID := uuid.New()
	older := start(t, botUID, "1")
	newer := start(t, botUID, "2")
	newer.AddMessage(conversation.NewMessage(newer.UID(), conversation.RoleUser, "hi", time.Time{}))

	err := uow.Do(ctx, func(ctx context.Context, uow conversation.UnitOfWork) error {
		for _, c := range []conversation.Conversation{older, newer, start(t, uuid.New(), "3")} {
			if err := uow.Conversations().Create(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var list []conversation.Conversation
	err = uow.Do(ctx, func(ctx context.Context, uow conversation.UnitOfWork) error {
		var err error
		list, err = uow.Conversations().FindByBot(ctx, botUID)
		return err
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.UID(), list[0].UID())
	assert.Empty(t, list[0].Messages())
}
