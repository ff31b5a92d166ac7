package telegram

import (
	"context"
	"time"

	"github.com/iota-uz/bothub/modules/bot"
	"github.com/iota-uz/bothub/modules/telegram/domain/aggregates/accountlink"
	"github.com/iota-uz/bothub/modules/telegram/domain/messenger"
	"github.com/iota-uz/bothub/modules/telegram/infrastructure/mtproto"
	"github.com/iota-uz/bothub/modules/telegram/infrastructure/persistence"
	"github.com/iota-uz/bothub/modules/telegram/services"
	"github.com/iota-uz/bothub/pkg/application"
)

type ModuleOptions struct {
	AppID         int
	AppHash       string
	DialTimeout   time.Duration
	ResumeOnStart bool
	// Client replaces the MTProto client, mostly in tests.
	Client messenger.Client
}

func NewModule(opts *ModuleOptions) application.Module {
	if opts == nil {
		opts = &ModuleOptions{}
	}
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	client := m.options.Client
	if client == nil {
		client = mtproto.NewClient(mtproto.Config{
			AppID:       m.options.AppID,
			AppHash:     m.options.AppHash,
			DialTimeout: m.options.DialTimeout,
		}, app.Logger())
	}
	manager, err := services.Register(services.Config{
		UnitOfWork:  UnitOfWork(app),
		Bots:        bot.UnitOfWork(app),
		Access:      bot.Access(app),
		Client:      client,
		Mediator:    app.Mediator(),
		Logger:      app.Logger(),
		BaseContext: app.Context(),
	})
	if err != nil {
		return err
	}
	app.RegisterServices(manager)
	if m.options.ResumeOnStart {
		app.OnStart(resumeListeners(manager))
	}
	app.OnShutdown(manager.Close)
	return nil
}

func (m *Module) Name() string {
	return "telegram"
}

func UnitOfWork(app application.Application) accountlink.UnitOfWorkFactory {
	if app.DB() == nil {
		return persistence.NewInmemUnitOfWorkFactory(app.Store())
	}
	return persistence.NewPgUnitOfWorkFactory()
}

func resumeListeners(manager *services.SessionManager) application.StartFunc {
	return func(ctx context.Context, app application.Application) error {
		n, err := manager.ResumeListeners(ctx)
		if err != nil {
			return err
		}
		app.Logger().WithField("module", "telegram").Infof("resumed %d telegram listeners", n)
		return nil
	}
}
