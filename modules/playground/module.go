package playground

import (
	"time"

	"github.com/iota-uz/bothub/modules/bot"
	"github.com/iota-uz/bothub/modules/playground/presentation/controllers"
	"github.com/iota-uz/bothub/modules/playground/services"
	"github.com/iota-uz/bothub/pkg/application"
)

type ModuleOptions struct {
	AllowedOrigins  []string
	MaxMessageSize  int64
	FramesPerMinute int64
	ReadTimeout     time.Duration
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
	svc := services.NewPlaygroundService(
		app.Mediator(),
		bot.Access(app),
		services.NewFrameLimiter(m.options.FramesPerMinute),
	)
	app.RegisterServices(svc)
	app.RegisterControllers(
		controllers.NewPlaygroundController(controllers.PlaygroundControllerConfig{
			BasePath: "/playground",
			Service:  svc,
			Upgrader: application.NewUpgrader(application.UpgraderOptions{
				AllowedOrigins: m.options.AllowedOrigins,
			}),
			MaxMessageSize: m.options.MaxMessageSize,
			ReadTimeout:    m.options.ReadTimeout,
		}),
	)
	return nil
}

func (m *Module) Name() string {
	return "playground"
}
