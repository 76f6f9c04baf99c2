// Package main is the entry point for the progress engine worker.
//
// The worker owns everything that runs on a clock rather than on a request:
// the nightly goal finalization sweep (including adaptive retargeting) and
// the daily KPI snapshots. Request-path handlers live in the application
// packages and are composed by whatever serves them; the worker builds only
// what its jobs run.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/learnquest/progress-engine/config"
	"github.com/learnquest/progress-engine/internal/application/command"
	"github.com/learnquest/progress-engine/internal/application/eventhandler"
	"github.com/learnquest/progress-engine/internal/application/query"
	"github.com/learnquest/progress-engine/internal/domain/activity"
	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/internal/infrastructure/messaging"
	"github.com/learnquest/progress-engine/internal/infrastructure/persistence/postgres"
	redisinfra "github.com/learnquest/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/learnquest/progress-engine/internal/infrastructure/scheduler"
	"github.com/learnquest/progress-engine/internal/infrastructure/scheduler/jobs"
	"github.com/learnquest/progress-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting progress engine worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// Command handlers carry their own structured logger.
	appLog := logger.New(os.Stdout, commandLogLevel(cfg))

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := connectDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redisinfra.Cache
	var progressCache query.ProgressCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redisinfra.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redisinfra.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info("Redis connection established")
		}
	}

	if redisCache != nil && cfg.Features.IsEnabled(config.FeatureProgressCache, nil) {
		progressCache = redisinfra.NewProgressCache(redisCache)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	profileRepo := postgres.NewProfileRepository(dbConn)
	taskRepo := postgres.NewTaskRepository(dbConn)
	goalRepo := postgres.NewGoalRepository(dbConn)
	activityRepo := postgres.NewActivityRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...", "mode", cfg.EventBus.Mode)
	eventBus, err := buildEventBus(cfg, redisCache, log)
	if err != nil {
		return fmt.Errorf("failed to build event bus: %w", err)
	}
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application handlers...")

	finalizeHandler := command.NewFinalizeGoalsHandler(goalRepo, eventBus, appLog)
	analytics := activity.NewAnalytics(activityRepo, taskRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	if progressCache != nil {
		invalidator := eventhandler.NewOnProgressChangedHandler(progressCache, log)
		if err := invalidator.Register(eventBus); err != nil {
			return fmt.Errorf("failed to register cache invalidation handler: %w", err)
		}
		log.Info("progress cache invalidation registered")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		schedCfg := scheduler.DefaultSchedulerConfig()
		schedCfg.Logger = log
		sched := scheduler.NewScheduler(schedCfg)

		if cfg.Features.IsEnabled(config.FeatureNightlyFinalize, nil) {
			finalizeJobCfg := jobs.DefaultFinalizeGoalsConfig()
			finalizeJobCfg.BatchSize = cfg.Scheduler.FinalizeBatchSize
			finalizeJobCfg.Timeout = cfg.Scheduler.JobTimeout
			finalizeJob := jobs.NewFinalizeGoalsJob(finalizeHandler, log, finalizeJobCfg)

			err = sched.Register(finalizeJob, scheduler.NewDailySchedule(
				cfg.Scheduler.FinalizeGoalsHour, cfg.Scheduler.FinalizeGoalsMinute))
			if err != nil {
				return fmt.Errorf("failed to register finalize_goals job: %w", err)
			}
		}

		if cfg.Features.IsEnabled(config.FeatureKPISnapshots, nil) {
			snapshotJobCfg := jobs.DefaultSnapshotKPIsConfig()
			snapshotJobCfg.PageSize = cfg.Scheduler.SnapshotPageSize
			snapshotJobCfg.Timeout = cfg.Scheduler.JobTimeout
			snapshotJob := jobs.NewSnapshotKPIsJob(profileRepo, analytics, log, snapshotJobCfg)

			err = sched.Register(snapshotJob, scheduler.NewDailySchedule(
				cfg.Scheduler.SnapshotKPIsHour, cfg.Scheduler.SnapshotKPIsMinute))
			if err != nil {
				return fmt.Errorf("failed to register snapshot_kpis job: %w", err)
			}
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler...")
			if err := sched.Stop(); err != nil {
				log.Warn("scheduler stop failed", "error", err)
			}
		}()

		for _, info := range sched.ListJobs() {
			log.Info("scheduled job",
				"job", info.Name,
				"schedule", info.Schedule,
				"next_run", info.NextRun,
			)
		}
	} else {
		log.Warn("scheduler is disabled; no background jobs will run")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("progress engine worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// connectDatabase opens the connection pool from either a URL or discrete
// settings.
func connectDatabase(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	if cfg.Database.URL != "" {
		return postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	}

	dbCfg := postgres.DefaultConfig()
	dbCfg.Host = cfg.Database.Host
	dbCfg.Port = cfg.Database.Port
	dbCfg.Database = cfg.Database.Name
	dbCfg.User = cfg.Database.User
	dbCfg.Password = cfg.Database.Password
	dbCfg.SSLMode = cfg.Database.SSLMode
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns
	dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	dbCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	return postgres.NewConnection(ctx, dbCfg)
}

// closableEventBus is the bus surface the worker owns: the domain bus plus
// its shutdown.
type closableEventBus interface {
	shared.EventBus
	Close() error
}

// buildEventBus builds the configured event bus. Redis mode falls back to the
// in-memory bus when no Redis connection is available.
func buildEventBus(cfg *config.Config, redisCache *redisinfra.Cache, log *slog.Logger) (closableEventBus, error) {
	localCfg := messaging.DefaultInMemoryEventBusConfig()
	localCfg.AsyncMode = cfg.EventBus.Async
	localCfg.WorkerPoolSize = cfg.EventBus.Workers
	localCfg.Logger = log

	if cfg.EventBus.Mode != "redis" {
		return messaging.NewInMemoryEventBus(localCfg), nil
	}
	if redisCache == nil {
		log.Warn("redis event bus requested but Redis is unavailable, using in-memory bus")
		return messaging.NewInMemoryEventBus(localCfg), nil
	}

	return messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
		Client:         newBusClient(redisCache),
		InstanceID:     cfg.EventBus.InstanceID,
		LocalBusConfig: localCfg,
		Logger:         log,
	})
}

// busClient adapts the Redis cache to the pub/sub surface the event bus needs.
type busClient struct {
	cache *redisinfra.Cache
}

func newBusClient(cache *redisinfra.Cache) *busClient {
	return &busClient{cache: cache}
}

func (c *busClient) Publish(ctx context.Context, channel string, message interface{}) error {
	return c.cache.Publish(ctx, channel, message)
}

func (c *busClient) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	sub := c.cache.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribe confirmation: %w", err)
	}

	out := make(chan messaging.RedisMessage)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			out <- messaging.RedisMessage{Channel: msg.Channel, Payload: msg.Payload}
		}
	}()

	return out, nil
}

// Close is a no-op; the underlying cache connection is closed by its owner.
func (c *busClient) Close() error {
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGGING HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures structured logging for infrastructure components.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	switch cfg.Observability.LogLevel {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

// commandLogLevel maps the configured level onto the command logger.
func commandLogLevel(cfg *config.Config) logger.Level {
	if cfg.App.Debug {
		return logger.LevelDebug
	}
	switch cfg.Observability.LogLevel {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}
