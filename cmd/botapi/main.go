// Package main implements the entry point for the bot API server. It
// wires the storage backend, the bot engine, and the REST and GraphQL
// façades over a shared registry.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/botapi/bot"
	"github.com/c360/botapi/config"
	"github.com/c360/botapi/gateway/graphql"
	"github.com/c360/botapi/gateway/rest"
	"github.com/c360/botapi/health"
	"github.com/c360/botapi/metric"
	"github.com/c360/botapi/natsclient"
	"github.com/c360/botapi/pkg/retry"
	"github.com/c360/botapi/registry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "botapi"
)

const healthProbeInterval = 15 * time.Second

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting bot API",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()

	metricsRegistry := metric.NewMetricsRegistry()
	metrics := metricsRegistry.CoreMetrics()
	monitor := health.NewMonitor()

	store, natsClient, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}
	defer store.Close(ctx)
	if natsClient != nil {
		defer natsClient.Close(ctx)
	}

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	reg, err := registry.New(store, engine,
		registry.WithLogger(logger),
		registry.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("create registry: %w", err)
	}

	apiServer, err := buildAPIServer(cfg, reg, monitor, metrics, logger)
	if err != nil {
		return fmt.Errorf("build API server: %w", err)
	}

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
	}

	monitor.UpdateHealthy("store", fmt.Sprintf("%s backend ready", store.Backend()))
	monitor.UpdateHealthy("engine", fmt.Sprintf("%s engine ready", engine.Name()))

	return runServers(ctx, cfg, cliCfg, reg, monitor, apiServer, metricsServer)
}

// loadConfig loads configuration with defaults when no file is named.
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader.AddLayer(path)
	}
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// buildStore creates the configured storage backend. The returned NATS
// client is nil for the memory backend.
func buildStore(ctx context.Context, cfg *config.Config,
	logger *slog.Logger) (registry.Store, *natsclient.Client, error) {

	switch cfg.Storage.Mode {
	case config.StorageModeMemory:
		slog.Info("Using in-memory store")
		return registry.NewMemStore(), nil, nil

	case config.StorageModeKV:
		natsClient, err := natsclient.NewClient(cfg.Storage.NATSURL)
		if err != nil {
			return nil, nil, err
		}

		connectCtx, cancel := context.WithTimeout(ctx, cfg.Storage.ConnectWait.Std())
		defer cancel()
		err = retry.Do(connectCtx, retry.Quick(), func() error {
			return natsClient.Connect(connectCtx)
		})
		if err != nil {
			return nil, nil, err
		}

		store, err := registry.NewKVStore(ctx, natsClient, registry.KVConfig{
			UserBucket:    cfg.Storage.UserBucket,
			MessageBucket: cfg.Storage.MessageBucket,
			CacheSize:     cfg.Storage.CacheSize,
			Logger:        logger,
		})
		if err != nil {
			_ = natsClient.Close(ctx)
			return nil, nil, err
		}

		slog.Info("Using NATS KV store",
			"url", cfg.Storage.NATSURL,
			"user_bucket", cfg.Storage.UserBucket,
			"message_bucket", cfg.Storage.MessageBucket)
		return store, natsClient, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage mode %q", cfg.Storage.Mode)
	}
}

// buildEngine creates the configured bot engine.
func buildEngine(cfg *config.Config, logger *slog.Logger) (bot.Engine, error) {
	switch cfg.Bot.Engine {
	case config.EngineReflect:
		slog.Info("Using reflect engine")
		return bot.NewReflectEngine(), nil

	case config.EngineOpenAI:
		engine, err := bot.NewOpenAIEngine(bot.OpenAIConfig{
			BaseURL:      cfg.Bot.BaseURL,
			Model:        cfg.Bot.Model,
			APIKey:       cfg.Bot.APIKey,
			SystemPrompt: cfg.Bot.SystemPrompt,
			Timeout:      cfg.Bot.Timeout.Std(),
			MaxHistory:   cfg.Bot.MaxHistory,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("Using OpenAI-compatible engine",
			"model", cfg.Bot.Model, "base_url", cfg.Bot.BaseURL)
		return engine, nil

	default:
		return nil, fmt.Errorf("unknown bot engine %q", cfg.Bot.Engine)
	}
}

// buildAPIServer assembles the REST routes, the GraphQL endpoint, and
// the health handler on one HTTP server.
func buildAPIServer(cfg *config.Config, reg *registry.Registry, monitor *health.Monitor,
	metrics *metric.Metrics, logger *slog.Logger) (*rest.Server, error) {

	restHandler := rest.NewHandler(reg, logger, metrics)
	apiServer, err := rest.NewServer(rest.ServerConfig{
		Address:         cfg.Server.Address,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		MaxRequestBytes: cfg.Server.MaxRequestBytes,
		ReadTimeout:     cfg.Server.ReadTimeout.Std(),
		WriteTimeout:    cfg.Server.WriteTimeout.Std(),
	}, restHandler, logger)
	if err != nil {
		return nil, err
	}

	executor, err := graphql.NewExecutor(reg, logger)
	if err != nil {
		return nil, err
	}
	apiServer.Mount(graphql.EndpointPattern(cfg.Server.GraphQLPath), graphql.NewHTTPHandler(executor, graphql.HandlerConfig{
		Path:       cfg.Server.GraphQLPath,
		Playground: cfg.Server.Playground,
	}, logger))

	if cfg.Health.Enabled {
		apiServer.Mount("GET /healthz", monitor.Handler(appName))
	}

	if err := apiServer.Setup(); err != nil {
		return nil, err
	}
	return apiServer, nil
}

// runServers starts everything and blocks until a shutdown signal.
func runServers(ctx context.Context, cfg *config.Config, cliCfg *CLIConfig,
	reg *registry.Registry, monitor *health.Monitor,
	apiServer *rest.Server, metricsServer *metric.Server) error {

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if metricsServer != nil {
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() { _ = metricsServer.Stop(5 * time.Second) }()
		slog.Info("Metrics server started", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
	}

	// Background store probe feeding the health monitor.
	probeCtx, probeCancel := context.WithCancel(signalCtx)
	defer probeCancel()
	go probeHealth(probeCtx, reg, monitor)

	g, gctx := errgroup.WithContext(signalCtx)
	ready := make(chan struct{})
	g.Go(func() error {
		return apiServer.Start(gctx, ready)
	})

	select {
	case <-ready:
		slog.Info("Bot API started successfully")
	case <-gctx.Done():
	}

	<-gctx.Done()
	slog.Info("Received shutdown signal")

	if err := apiServer.Stop(cliCfg.ShutdownTimeout); err != nil {
		slog.Error("Error stopping API server", "error", err)
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	slog.Info("Bot API shutdown complete")
	return nil
}

// probeHealth periodically pings the store and updates the monitor.
func probeHealth(ctx context.Context, reg *registry.Registry, monitor *health.Monitor) {
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := reg.Ping(ctx); err != nil {
				monitor.UpdateUnhealthy("store", err.Error())
			} else {
				monitor.UpdateHealthy("store", fmt.Sprintf("%s backend ready", reg.Backend()))
			}
		}
	}
}
