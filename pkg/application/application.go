package application

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"sync"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/bothub/pkg/cache"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/generation"
	"github.com/iota-uz/bothub/pkg/mediator"
	"github.com/iota-uz/bothub/pkg/memstore"
)

type Controller interface {
	Register(r *mux.Router)
	Key() string
}

type Module interface {
	Name() string
	Register(app Application) error
}

// StartFunc runs once after every module was registered.
type StartFunc func(ctx context.Context, app Application) error

type Application interface {
	// DB is nil when the application runs on the in-memory store.
	DB() *pgxpool.Pool
	Store() *memstore.Store
	Mediator() *mediator.Mediator
	Logger() *logrus.Logger
	Cache() cache.Store
	Registry() *generation.Registry
	// Context carries the pool and logger for work that outlives requests.
	Context() context.Context

	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	RegisterServices(services ...any)
	Service(service any) any

	OnStart(fns ...StartFunc)
	OnShutdown(fns ...func())
	Start(ctx context.Context) error
	Shutdown()
}

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	Logger   *logrus.Logger
	Cache    cache.Store
	Registry *generation.Registry
}

func New(opts *ApplicationOptions) Application {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	store := opts.Cache
	if store == nil {
		store = cache.NewMemoryStore()
	}
	app := &application{
		pool:        opts.Pool,
		mediator:    mediator.New(logger),
		logger:      logger,
		cache:       store,
		registry:    opts.Registry,
		controllers: make(map[string]Controller),
		services:    make(map[reflect.Type]any),
	}
	if opts.Pool == nil {
		app.store = memstore.New()
	}
	return app
}

// application with a dynamically extendable service registry
type application struct {
	pool        *pgxpool.Pool
	store       *memstore.Store
	mediator    *mediator.Mediator
	logger      *logrus.Logger
	cache       cache.Store
	registry    *generation.Registry
	controllers map[string]Controller
	middleware  []mux.MiddlewareFunc
	services    map[reflect.Type]any

	startFuncs []StartFunc
	mu         sync.Mutex
	shutdown   []func()
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) Store() *memstore.Store {
	return app.store
}

func (app *application) Mediator() *mediator.Mediator {
	return app.mediator
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

func (app *application) Cache() cache.Store {
	return app.cache
}

func (app *application) Registry() *generation.Registry {
	return app.registry
}

func (app *application) Context() context.Context {
	ctx := composables.WithLogger(context.Background(), logrus.NewEntry(app.logger))
	if app.pool != nil {
		ctx = composables.WithPool(ctx, app.pool)
	}
	return ctx
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	return app.middleware
}

func (app *application) Controllers() []Controller {
	controllers := make([]Controller, 0, len(app.controllers))
	for _, c := range app.controllers {
		controllers = append(controllers, c)
	}
	return controllers
}

func (app *application) RegisterControllers(controllers ...Controller) {
	for _, c := range controllers {
		app.controllers[c.Key()] = c
	}
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.middleware = append(app.middleware, middleware...)
}

// RegisterServices registers a new service in the application by its type
func (app *application) RegisterServices(services ...any) {
	for _, service := range services {
		serviceType := reflect.TypeOf(service).Elem()
		app.services[serviceType] = service
	}
}

// Service retrieves a service by its type
func (app *application) Service(service any) any {
	serviceType := reflect.TypeOf(service)
	svc, exists := app.services[serviceType]
	if !exists {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}

func (app *application) OnStart(fns ...StartFunc) {
	app.startFuncs = append(app.startFuncs, fns...)
}

func (app *application) OnShutdown(fns ...func()) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.shutdown = append(app.shutdown, fns...)
}

// Start freezes the mediator and runs the start hooks in registration order.
func (app *application) Start(ctx context.Context) error {
	app.mediator.Freeze()
	for _, fn := range app.startFuncs {
		app.logger.Infof("Starting %s", runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name())
		if err := fn(ctx, app); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown runs the shutdown hooks in reverse order, then waits for event
// handlers that are still running.
func (app *application) Shutdown() {
	app.mu.Lock()
	hooks := app.shutdown
	app.shutdown = nil
	app.mu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
	app.mediator.Wait()
}
