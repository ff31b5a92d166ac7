package conversation

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
)

type Repository interface {
	// Create fails with ErrConversationAlreadyExists when the
	// (platform, sender_id, bot_uid) triple is taken.
	Create(ctx context.Context, c Conversation) error
	Update(ctx context.Context, c Conversation) error
	// FindByUID and FindBySender load the messages as well.
	FindByUID(ctx context.Context, uid uuid.UUID) (Conversation, error)
	FindBySender(ctx context.Context, platform bot.Platform, senderID string, botUID uuid.UUID) (Conversation, error)
	// FindByBot returns the bot's conversations without their messages,
	// most recently updated first.
	FindByBot(ctx context.Context, botUID uuid.UUID) ([]Conversation, error)
	DeleteByUID(ctx context.Context, uid uuid.UUID) error
}

type MessageRepository interface {
	Create(ctx context.Context, m Message) error
	FindByConversation(ctx context.Context, conversationUID uuid.UUID) ([]Message, error)
}

type UnitOfWork interface {
	Conversations() Repository
	Messages() MessageRepository
}

type UnitOfWorkFactory interface {
	Do(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}
