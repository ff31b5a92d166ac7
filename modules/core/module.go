package core

import (
	"github.com/iota-uz/bothub/modules/core/domain/aggregates/user"
	"github.com/iota-uz/bothub/modules/core/infrastructure/persistence"
	"github.com/iota-uz/bothub/modules/core/services"
	"github.com/iota-uz/bothub/pkg/application"
	"github.com/iota-uz/bothub/pkg/composables"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct {
}

func (m *Module) Register(app application.Application) error {
	if app.DB() == nil {
		store := app.Store()
		app.RegisterServices(services.NewUserService(persistence.NewInmemUserRepository(store), store.InTx))
		return nil
	}
	app.RegisterServices(services.NewUserService(persistence.NewUserRepository(), composables.InTx))
	return nil
}

func (m *Module) Name() string {
	return "core"
}

// Users returns the user lookup registered by the core module.
func Users(app application.Application) user.Repository {
	return app.Service(services.UserService{}).(*services.UserService).Repository()
}
