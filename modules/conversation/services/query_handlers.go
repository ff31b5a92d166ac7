package services

import (
	"context"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	botServices "github.com/iota-uz/bothub/modules/bot/services"
	"github.com/iota-uz/bothub/modules/conversation/domain/aggregates/conversation"
)

type GetConversationHandler struct {
	uow    conversation.UnitOfWorkFactory
	access *botServices.AccessService
}

// Handle loads the conversation with its messages; any participant of the
// bot may read it.
func (h *GetConversationHandler) Handle(ctx context.Context, q GetConversation) (conversation.Conversation, error) {
	if err := validate(q); err != nil {
		return nil, err
	}
	var out conversation.Conversation
	err := h.uow.Do(ctx, func(ctx context.Context, uow conversation.UnitOfWork) error {
		c, err := uow.Conversations().FindByUID(ctx, q.ConversationUID)
		out = c
		return err
	})
	if err != nil {
		return nil, err
	}
	if _, err := h.access.CheckAccess(ctx, q.UserUID, out.BotUID(), bot.RolesAny); err != nil {
		return nil, err
	}
	return out, nil
}

type ListBotConversationsHandler struct {
	uow    conversation.UnitOfWorkFactory
	access *botServices.AccessService
}

func (h *ListBotConversationsHandler) Handle(ctx context.Context, q ListBotConversations) ([]conversation.Conversation, error) {
	if err := validate(q); err != nil {
		return nil, err
	}
	if _, err := h.access.CheckAccess(ctx, q.UserUID, q.BotUID, bot.RolesAny); err != nil {
		return nil, err
	}
	var out []conversation.Conversation
	err := h.uow.Do(ctx, func(ctx context.Context, uow conversation.UnitOfWork) error {
		list, err := uow.Conversations().FindByBot(ctx, q.BotUID)
		out = list
		return err
	})
	return out, err
}
