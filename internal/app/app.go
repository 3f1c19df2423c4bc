package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/linkstat/internal/analytics"
	"github.com/sundayezeilo/linkstat/internal/config"
	"github.com/sundayezeilo/linkstat/internal/metrics"
	"github.com/sundayezeilo/linkstat/internal/server"
	"github.com/sundayezeilo/linkstat/internal/shortener"
	"github.com/sundayezeilo/linkstat/internal/storage/memory"
	"github.com/sundayezeilo/linkstat/internal/storage/postgres"
	"github.com/sundayezeilo/linkstat/internal/storage/postgres/migrations"
	"github.com/sundayezeilo/linkstat/internal/storage/rediscache"
)

// App holds the application dependencies and configuration.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DBPool   *pgxpool.Pool
	Redis    *redis.Client
	Recorder *shortener.Recorder
	Metrics  *metrics.Metrics
	Server   *server.Server
}

// New loads configuration from the environment and builds the App.
func New(ctx context.Context) (*App, error) {
	if err := loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.App.LogLevel)

	logger.Info("starting application",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"store", cfg.Store.Driver,
	)

	return Build(ctx, cfg, logger)
}

// Build wires every dependency from cfg. On error anything already opened
// is released.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		_ = a.Shutdown(ctx)
		return nil, err
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	if cfg.Redis.Enabled {
		a.Redis = connectRedis(ctx, cfg, logger)
		cacheCfg := rediscache.Config{
			TTL:     cfg.Redis.TTL,
			Timeout: cfg.Redis.Timeout,
			Logger:  logger,
		}
		if a.Metrics != nil {
			cacheCfg.Observe = a.Metrics.CacheResult
		}
		store = rediscache.New(store, a.Redis, cacheCfg)
	}

	a.Recorder = shortener.NewRecorder(store, shortener.RecorderConfig{
		QueueSize:    cfg.Clicks.QueueSize,
		Workers:      cfg.Clicks.Workers,
		WriteTimeout: cfg.Clicks.WriteTimeout,
		Logger:       logger,
	})
	if a.Metrics != nil {
		a.Metrics.ObserveRecorder(a.Recorder.Stats)
	}

	svc := shortener.NewService(store, &shortener.ServiceConfig{
		CodeLength:  cfg.Shortener.CodeLength,
		MaxAttempts: cfg.Shortener.MaxAttempts,
		Recorder:    a.Recorder,
		Logger:      logger,
	})
	links := shortener.NewHandler(shortener.HandlerConfig{
		Service: svc,
		Logger:  logger,
		BaseURL: cfg.Server.BaseURL,
	})

	agg := analytics.New(store, analytics.Config{Logger: logger})
	stats := analytics.NewHandler(agg, logger)

	a.Server = server.New(cfg, logger, server.Handlers{
		Links:   links,
		Stats:   stats,
		Metrics: a.Metrics,
	})

	logger.Info("application initialized",
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"cache", cfg.Redis.Enabled,
		"metrics", cfg.Metrics.Enabled,
	)

	return a, nil
}

// Start starts the application server.
func (a *App) Start(ctx context.Context) error {
	a.Logger.Info("server starting",
		"port", a.Config.Server.Port,
		"base_url", a.Config.Server.BaseURL,
	)

	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown drains pending clicks, then closes the cache and database.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	var errs []error

	if a.Recorder != nil {
		if err := a.Recorder.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain clicks: %w", err))
		}
		recorded, failed, dropped := a.Recorder.Stats()
		a.Logger.Info("click recorder stopped",
			"recorded", recorded,
			"failed", failed,
			"dropped", dropped,
		)
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database connection closed")
	}

	return errors.Join(errs...)
}

func (a *App) openStore(ctx context.Context) (shortener.Store, error) {
	switch a.Config.Store.Driver {
	case config.StoreDriverMemory:
		a.Logger.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil

	case config.StoreDriverPostgres:
		if a.Config.Database.AutoMigrate {
			if err := migrations.Run(a.Config.Database.URL(), a.Logger); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		pool, err := connectDatabase(ctx, a.Config, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DBPool = pool

		return postgres.New(pool, &postgres.Config{
			QueryTimeout: a.Config.Database.QueryTimeout,
		}), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", a.Config.Store.Driver)
	}
}

// loadEnv loads .env file only in non-production environments.
func loadEnv() error {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" {
		if err := godotenv.Load(); err != nil {
			log.Println("no .env file found.")
		}
	}
	return nil
}

// setupLogger creates a structured logger based on the log level.
func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}

// connectDatabase establishes a connection to the PostgreSQL database.
func connectDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")

	return pool, nil
}

// connectRedis opens the cache client. An unreachable server is logged and
// tolerated; lookups fall back to the store until it comes up.
func connectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.Timeout,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, continuing without warm cache",
			"addr", cfg.Redis.Addr,
			"error", err.Error(),
		)
	} else {
		logger.Info("redis connection established", "addr", cfg.Redis.Addr)
	}

	return client
}
