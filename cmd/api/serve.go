package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/helpdesk-labs/ticket-tracker/internal/api/http"
	"github.com/helpdesk-labs/ticket-tracker/internal/api/http/handlers"
	"github.com/helpdesk-labs/ticket-tracker/internal/auth"
	"github.com/helpdesk-labs/ticket-tracker/internal/cache"
	"github.com/helpdesk-labs/ticket-tracker/internal/config"
	"github.com/helpdesk-labs/ticket-tracker/internal/events"
	"github.com/helpdesk-labs/ticket-tracker/internal/observability"
	"github.com/helpdesk-labs/ticket-tracker/internal/persistence"
	"github.com/helpdesk-labs/ticket-tracker/internal/repository"
	"github.com/helpdesk-labs/ticket-tracker/internal/service"
	"github.com/helpdesk-labs/ticket-tracker/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	var store repository.Store
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		store = repository.NewMemoryStore()
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()
	var readCache cache.Cache = cache.Noop{}
	if redis.Enabled() {
		readCache = cache.NewRedisCache(redis.Client, cfg.Redis.CacheTTL(), logger)
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(metricsNamespace(cfg.App.Name))
	}

	dispatcher := events.NewInMemoryDispatcher()
	sink := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer sink.Close() //nolint:errcheck
	if sink.Enabled() {
		logger.Info("publishing ticket events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, sink, logger, cfg.Notification))

	gate := auth.NewGate()
	auditLog := service.NewAuditLog(store, nil)
	ticketStore := service.NewTicketStore(store, auditLog, readCache, nil)
	ticketService := service.NewTicketService(service.TicketDependencies{
		Gate:       gate,
		Store:      ticketStore,
		Audit:      auditLog,
		UserRepo:   store.Users(),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	userService := service.NewUserService(*cfg, service.UserDependencies{
		UserRepo: store.Users(),
		Gate:     gate,
		Cache:    readCache,
		Logger:   logger,
	})

	if cfg.Bootstrap.AdminEmail != "" {
		if _, _, err := userService.EnsureAdmin(ctx, cfg.Bootstrap.AdminName, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword); err != nil {
			return fmt.Errorf("failed to bootstrap admin: %w", err)
		}
	}

	authMiddleware := auth.NewAuthMiddleware(userService.TokenManager(), userService)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Users:          handlers.NewUsersHandler(userService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
		MetricsPath:    cfg.Metrics.Path,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.Bool("postgres", pg.Enabled()), zap.Bool("redis", redis.Enabled()))
		errCh <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("fiber listen: %w", err)
	case sig := <-shutdownSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}
	return app.Shutdown()
}

func shutdownSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}

// metricsNamespace turns the app name into a valid Prometheus namespace.
func metricsNamespace(name string) string {
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name)
}
