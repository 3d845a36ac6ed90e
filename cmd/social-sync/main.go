package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goliatone/go-command"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-social-sync/adapters/gocommand"
	"github.com/goliatone/go-social-sync/adapters/gologger"
	promadapter "github.com/goliatone/go-social-sync/adapters/prometheus"
	redisadapter "github.com/goliatone/go-social-sync/adapters/redis"
	"github.com/goliatone/go-social-sync/core"
	"github.com/goliatone/go-social-sync/httpapi"
	socialmigrations "github.com/goliatone/go-social-sync/migrations"
	"github.com/goliatone/go-social-sync/providers/meta"
	"github.com/goliatone/go-social-sync/ratelimit"
	"github.com/goliatone/go-social-sync/security"
	sqlstore "github.com/goliatone/go-social-sync/store/sql"
	contentsync "github.com/goliatone/go-social-sync/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "social-sync: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := configPath()
	appCfg, err := loadAppConfig(path)
	if err != nil {
		return err
	}

	root := gologger.New(os.Stdout, appCfg.Log)
	loggers := gologger.NewProvider(root)
	logger := loggers.GetLogger("social-sync")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configProvider := core.NewCfgxConfigProvider(connectorLoader{base: core.YAMLConfigLoader{Path: path}})
	connectorCfg, err := configProvider.Load(ctx, core.DefaultConfig())
	if err != nil {
		return fmt.Errorf("load connector config: %w", err)
	}

	secret, err := security.MasterSecretFromEnv(security.DefaultMasterSecretEnv, appCfg.EnvFiles...)
	if err != nil {
		return err
	}
	cipher, err := security.NewTenantCipher(secret)
	if err != nil {
		return err
	}

	client, err := sqlstore.OpenPersistence(appCfg.Database)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := migrate(ctx, client, appCfg.Database.Dialect()); err != nil {
		return err
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := promadapter.NewRecorder(registry)

	serviceOpts := []core.Option{
		core.WithConfigProvider(configProvider),
		core.WithLoggerProvider(loggers),
		core.WithMetricsRecorder(recorder),
		core.WithStoreProvider(factory),
		core.WithCipher(cipher),
	}

	var rateStore ratelimit.StateStore
	if url := strings.TrimSpace(appCfg.Redis.URL); url != "" {
		rdb, err := redisadapter.Open(ctx, url)
		if err != nil {
			return err
		}
		defer rdb.Close()
		states, err := redisadapter.NewOAuthStateStore(rdb, connectorCfg.OAuth.StateTTL, redisadapter.WithStatePrefix(appCfg.Redis.Prefix))
		if err != nil {
			return err
		}
		locker, err := redisadapter.NewTenantLocker(rdb, appCfg.Redis.Prefix)
		if err != nil {
			return err
		}
		rateStore, err = redisadapter.NewRateLimitStateStore(rdb, appCfg.Redis.Prefix, 0)
		if err != nil {
			return err
		}
		serviceOpts = append(serviceOpts, core.WithOAuthStateStore(states), core.WithTenantLocker(locker))
		logger.Info("redis coordination enabled", "prefix", appCfg.Redis.Prefix)
	} else {
		cache, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
		if err != nil {
			return fmt.Errorf("rate limit cache: %w", err)
		}
		rateStore, err = sqlstore.NewCachedRateLimitStateStore(factory.RateLimitStateStore(), cache)
		if err != nil {
			return err
		}
		serviceOpts = append(serviceOpts, core.WithTenantLocker(core.NewMemoryTenantLocker()))
	}

	graphCfg := meta.ConfigFromCore(connectorCfg)
	graphCfg.RateLimitPolicy = ratelimit.NewAdaptivePolicy(rateStore)
	graph, err := meta.New(graphCfg)
	if err != nil {
		return err
	}
	serviceOpts = append(serviceOpts, core.WithTokenExchanger(graph))

	service, err := core.NewService(core.Config{}, serviceOpts...)
	if err != nil {
		return err
	}

	subscriptions, err := gocommand.SubscribeConnector(gocommand.NewRegistryAdapter(command.NewRegistry()), service)
	if err != nil {
		return err
	}
	defer subscriptions.Unsubscribe()

	scheduler, err := contentsync.NewScheduler(service,
		contentsync.WithInterval(connectorCfg.Sync.Interval),
		contentsync.WithLogger(loggers.GetLogger("scheduler")),
		contentsync.WithRunOnStart(true),
	)
	if err != nil {
		return err
	}
	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Run(schedulerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", "error", err)
		}
	}()
	// Drains the sweep before persistence and redis are closed.
	defer func() {
		stopScheduler()
		<-schedulerDone
	}()

	apiOpts := []httpapi.Option{httpapi.WithLogger(loggers.GetLogger("http"))}
	if appCfg.Server.Metrics {
		httpMetrics, err := promadapter.NewHTTPMetrics(registry)
		if err != nil {
			return err
		}
		apiOpts = append(apiOpts,
			httpapi.WithMiddleware(httpMetrics.Middleware),
			httpapi.WithMetricsHandler(promadapter.Handler(registry)),
		)
	}

	httpServer := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      httpapi.NewServer(service, apiOpts...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "addr", appCfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.Server.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func migrate(ctx context.Context, client *persistence.Client, dialect string) error {
	if _, err := socialmigrations.Register(ctx, func(_ context.Context, d string, _ string, fsys fs.FS) error {
		if d == dialect {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, socialmigrations.WithDialects(dialect)); err != nil {
		return err
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
