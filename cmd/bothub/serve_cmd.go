package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/bothub/internal/server"
	"github.com/iota-uz/bothub/modules"
	"github.com/iota-uz/bothub/pkg/application"
	"github.com/iota-uz/bothub/pkg/cache"
	"github.com/iota-uz/bothub/pkg/configuration"
	"github.com/iota-uz/bothub/pkg/generation"
	"github.com/iota-uz/bothub/pkg/logging"
	"github.com/iota-uz/bothub/pkg/metrics"
)

const cachePrefix = "bothub"

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server, playground sockets and telegram listeners",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configuration.Use())
		},
	}
}

func serve(ctx context.Context, conf *configuration.Configuration) error {
	defer conf.Unload()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		cleanup := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		defer cleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	var pool *pgxpool.Pool
	if conf.Database.Driver == "postgres" {
		p, err := connectDB(ctx, conf)
		if err != nil {
			return err
		}
		defer p.Close()
		pool = p
	} else {
		logger.Warn("running on the in-memory store; data is lost on exit")
	}

	registry, err := generation.BuildRegistry(conf.Generation)
	if err != nil {
		return err
	}
	store, closeCache := newCache(conf, logger)
	defer closeCache()

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		Logger:   logger,
		Cache:    store,
		Registry: registry,
	})
	if err := modules.Load(app, modules.BuiltInModules(conf)...); err != nil {
		return err
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}
	srv, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	if err != nil {
		return err
	}

	if err := app.Start(app.Context()); err != nil {
		app.Shutdown()
		return err
	}
	defer app.Shutdown()

	logger.Infof("Listening on: %s", conf.SocketAddress)
	return srv.Serve(ctx, conf.SocketAddress)
}

// newCache returns the redis store when redis is enabled and reachable, the
// in-process store otherwise.
func newCache(conf *configuration.Configuration, logger *logrus.Logger) (cache.Store, func()) {
	if !conf.Redis.Enabled {
		return cache.NewMemoryStore(), func() {}
	}
	opts, err := redis.ParseURL(conf.Redis.URL)
	if err != nil {
		opts = &redis.Options{Addr: conf.Redis.URL}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.WithError(err).Warn("redis unavailable, falling back to the in-memory cache")
		_ = client.Close()
		return cache.NewMemoryStore(), func() {}
	}
	return cache.NewRedisStore(client, cachePrefix), func() { _ = client.Close() }
}
