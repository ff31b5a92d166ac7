package services

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	botServices "github.com/iota-uz/bothub/modules/bot/services"
	"github.com/iota-uz/bothub/modules/conversation/domain/aggregates/conversation"
	"github.com/iota-uz/bothub/pkg/generation"
	"github.com/iota-uz/bothub/pkg/lock"
	"github.com/iota-uz/bothub/pkg/mediator"
)

type Config struct {
	UnitOfWork conversation.UnitOfWorkFactory
	// Bots must share transactions with UnitOfWork: the quota charge
	// commits or rolls back together with the conversation turns.
	Bots       bot.UnitOfWorkFactory
	Lookup     *botServices.BotLookup
	Access     *botServices.AccessService
	Registry   *generation.Registry
	Mediator   *mediator.Mediator
	Logger     *logrus.Logger
	Locks      *lock.Keyed
}

func Register(cfg Config) error {
	if cfg.Registry == nil {
		return errors.New("conversation: generation registry is required")
	}
	if cfg.Locks == nil {
		cfg.Locks = lock.NewKeyed()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	m := cfg.Mediator

	engine := &ProcessIncomingMessageHandler{
		conversations: cfg.UnitOfWork,
		bots:          cfg.Bots,
		lookup:        cfg.Lookup,
		registry:      cfg.Registry,
		locks:         cfg.Locks,
		mediator:      m,
	}
	if err := mediator.RegisterCommand(m, func() mediator.CommandHandler[ProcessIncomingMessage, Result] { return engine }); err != nil {
		return err
	}

	get := &GetConversationHandler{uow: cfg.UnitOfWork, access: cfg.Access}
	if err := mediator.RegisterQuery(m, func() mediator.QueryHandler[GetConversation, conversation.Conversation] { return get }); err != nil {
		return err
	}
	list := &ListBotConversationsHandler{uow: cfg.UnitOfWork, access: cfg.Access}
	if err := mediator.RegisterQuery(m, func() mediator.QueryHandler[ListBotConversations, []conversation.Conversation] { return list }); err != nil {
		return err
	}
	return registerEventHandlers(m, cfg.Logger.WithField("module", "conversation"))
}
