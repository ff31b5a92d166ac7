package conversation

import (
	"github.com/iota-uz/bothub/modules/bot"
	"github.com/iota-uz/bothub/modules/conversation/domain/aggregates/conversation"
	"github.com/iota-uz/bothub/modules/conversation/infrastructure/persistence"
	"github.com/iota-uz/bothub/modules/conversation/presentation/controllers"
	"github.com/iota-uz/bothub/modules/conversation/services"
	"github.com/iota-uz/bothub/pkg/application"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct {
}

func (m *Module) Register(app application.Application) error {
	if err := services.Register(services.Config{
		UnitOfWork: UnitOfWork(app),
		Bots:       bot.UnitOfWork(app),
		Lookup:     bot.Lookup(app),
		Access:     bot.Access(app),
		Registry:   app.Registry(),
		Mediator:   app.Mediator(),
		Logger:     app.Logger(),
	}); err != nil {
		return err
	}
	app.RegisterControllers(
		controllers.NewConversationAPIController(controllers.ConversationAPIControllerConfig{
			BasePath:   "/api/v1",
			AliasPaths: []string{"/api"},
			Mediator:   app.Mediator(),
		}),
	)
	return nil
}

func (m *Module) Name() string {
	return "conversation"
}

func UnitOfWork(app application.Application) conversation.UnitOfWorkFactory {
	if app.DB() == nil {
		return persistence.NewInmemUnitOfWorkFactory(app.Store())
	}
	return persistence.NewPgUnitOfWorkFactory()
}
