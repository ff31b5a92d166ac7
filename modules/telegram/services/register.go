package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	botServices "github.com/iota-uz/bothub/modules/bot/services"
	"github.com/iota-uz/bothub/modules/telegram/domain/aggregates/accountlink"
	"github.com/iota-uz/bothub/modules/telegram/domain/messenger"
	"github.com/iota-uz/bothub/pkg/mediator"
)

type Config struct {
	UnitOfWork accountlink.UnitOfWorkFactory
	// Bots must share transactions with UnitOfWork.
	Bots       bot.UnitOfWorkFactory
	Access     *botServices.AccessService
	Client     messenger.Client
	Mediator   *mediator.Mediator
	Logger     *logrus.Logger

	// BaseContext seeds listener contexts. Defaults to context.Background.
	BaseContext context.Context
}

type handlerFunc[C any, R any] func(ctx context.Context, cmd C) (R, error)

func (f handlerFunc[C, R]) Handle(ctx context.Context, cmd C) (R, error) {
	return f(ctx, cmd)
}

func command[C any, R any](m *mediator.Mediator, fn func(ctx context.Context, cmd C) (R, error)) error {
	h := handlerFunc[C, R](fn)
	return mediator.RegisterCommand(m, func() mediator.CommandHandler[C, R] { return h })
}

// Register wires the telegram link commands and the listener lifecycle
// handlers. The returned manager owns the listeners and must be closed on
// shutdown.
func Register(cfg Config) (*SessionManager, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger.WithField("module", "telegram")
	m := cfg.Mediator
	manager := NewSessionManager(
		cfg.UnitOfWork,
		cfg.Bots,
		cfg.Access,
		cfg.Client,
		NewListeners(cfg.BaseContext, cfg.Client, m, logger),
		m,
	)

	regs := []error{
		command(m, manager.RequestCode),
		command(m, manager.SubmitCode),
		command(m, manager.Reassign),
		command(m, manager.DeactivateLink),
	}
	for _, err := range regs {
		if err != nil {
			return nil, err
		}
	}
	list := handlerFunc[ListLinks, []accountlink.Link](manager.ListLinks)
	if err := mediator.RegisterQuery(m, func() mediator.QueryHandler[ListLinks, []accountlink.Link] { return list }); err != nil {
		return nil, err
	}
	if err := registerEventHandlers(m, eventHandlers{manager: manager, logger: logger}); err != nil {
		return nil, err
	}
	return manager, nil
}
