package bot

import (
	"time"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/modules/bot/infrastructure/persistence"
	"github.com/iota-uz/bothub/modules/bot/services"
	"github.com/iota-uz/bothub/modules/core"
	"github.com/iota-uz/bothub/pkg/application"
)

type ModuleOptions struct {
	// CacheTTL bounds how long bot snapshots stay in the application cache.
	CacheTTL time.Duration
	Notifier services.Notifier
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
	uow := UnitOfWork(app)
	lookup := services.NewBotLookup(uow, app.Cache(), m.options.CacheTTL)
	access, err := services.Register(services.Config{
		UnitOfWork: uow,
		Users:      core.Users(app),
		Mediator:   app.Mediator(),
		Lookup:     lookup,
		Notifier:   m.options.Notifier,
		Logger:     app.Logger(),
	})
	if err != nil {
		return err
	}
	app.RegisterServices(access, lookup)
	return nil
}

func (m *Module) Name() string {
	return "bot"
}

// UnitOfWork returns the bot store matching the application's backend.
func UnitOfWork(app application.Application) bot.UnitOfWorkFactory {
	if app.DB() == nil {
		return persistence.NewInmemUnitOfWorkFactory(app.Store())
	}
	return persistence.NewPgUnitOfWorkFactory()
}

func Access(app application.Application) *services.AccessService {
	return app.Service(services.AccessService{}).(*services.AccessService)
}

func Lookup(app application.Application) *services.BotLookup {
	return app.Service(services.BotLookup{}).(*services.BotLookup)
}
