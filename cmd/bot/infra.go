package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"

	"github.com/Proton-105/payments-bot/internal/database"
	"github.com/Proton-105/payments-bot/internal/health"
	"github.com/Proton-105/payments-bot/internal/idempotency"
	"github.com/Proton-105/payments-bot/internal/jobs"
	jobhandlers "github.com/Proton-105/payments-bot/internal/jobs/handlers"
	"github.com/Proton-105/payments-bot/internal/lifecycle"
	"github.com/Proton-105/payments-bot/internal/notify"
	"github.com/Proton-105/payments-bot/internal/payments"
	"github.com/Proton-105/payments-bot/internal/profilecache"
	"github.com/Proton-105/payments-bot/internal/ratelimit"
	"github.com/Proton-105/payments-bot/internal/repository"
	"github.com/Proton-105/payments-bot/internal/session"
	"github.com/Proton-105/payments-bot/internal/state"
	"github.com/Proton-105/payments-bot/pkg/config"
	redisclient "github.com/Proton-105/payments-bot/pkg/redis"
)

const (
	limiterCleanupInterval     = time.Minute
	limiterMaxAge              = 10 * time.Minute
	idempotencyCleanupInterval = time.Hour
)

// infra holds the optional shared backends. Either field may be nil.
type infra struct {
	redis *redisclient.Client
	db    *sql.DB
}

func openInfra(ctx context.Context, cfg *config.Config, log *slog.Logger, shutdown *lifecycle.Shutdown, checker *health.Checker) (*infra, error) {
	in := &infra{}

	if cfg.Redis.Enabled {
		rdb, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		in.redis = rdb
		checker.AddCheck("redis", health.NewRedisChecker(rdb))
		shutdown.Register(lifecycle.StageStorage, "redis", func(context.Context) error {
			return rdb.Close()
		})
		log.Info("connected to redis", slog.String("addr", cfg.Redis.Addr))
	}

	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}

		if err := database.NewMigrator(db, log).ApplyDir(ctx, cfg.Database.MigrationsDir); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info("database migrations applied")

		in.db = db
		checker.AddCheck("postgres", health.NewDBChecker(db))
		shutdown.Register(lifecycle.StageStorage, "postgres", func(context.Context) error {
			return db.Close()
		})
	}

	return in, nil
}

func newSessionStore(cfg *config.Config, in *infra, log *slog.Logger) (session.Store, error) {
	switch cfg.Session.Driver {
	case "postgres":
		if in.db == nil {
			return nil, errors.New("session driver postgres requires database.dsn")
		}
		return session.NewPostgresStore(in.db, log), nil
	default:
		store, err := session.NewFileStore(cfg.Session.FilePath)
		if err != nil {
			return nil, fmt.Errorf("open session file: %w", err)
		}
		return store, nil
	}
}

func newStateBackend(cfg *config.Config, in *infra, log *slog.Logger) (state.Storage, state.Locker) {
	if cfg.State.Backend == "redis" && in.redis != nil {
		// Records outlive the idle sweep so the cleaner can still notify the chat.
		var ttl time.Duration
		if cfg.State.IdleTTL > 0 {
			ttl = 2 * cfg.State.IdleTTL
		}
		return state.NewRedisStorage(in.redis, log, ttl), state.NewRedisLocker(in.redis, log, cfg.State.LockTTL)
	}

	if cfg.State.Backend == "redis" {
		log.Warn("state backend redis requested without redis.enabled, using memory")
	}
	return state.NewMemoryStorage(), state.NewMemoryLocker()
}

// newLimiter prefers Redis and falls back to the in-process limiter when Redis fails.
func newLimiter(ctx context.Context, in *infra, log *slog.Logger) ratelimit.Limiter {
	memory := ratelimit.NewMemoryLimiter(log)
	go memory.Run(ctx, limiterCleanupInterval, limiterMaxAge)

	if in.redis == nil {
		return memory
	}

	go ratelimit.NewCleaner(in.redis, log, limiterCleanupInterval, limiterMaxAge).Run(ctx)
	return ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(in.redis, log), memory, log)
}

// accountAPI serves profiles through the profile cache and everything else from the client.
type accountAPI struct {
	*payments.Client
	profiles *profilecache.Profiles
}

func (a accountAPI) GetProfile(ctx context.Context, chatID int64) (*payments.User, error) {
	return a.profiles.GetProfile(ctx, chatID)
}

func newAccountAPI(api *payments.Client, sessions *session.Service, in *infra, log *slog.Logger) accountAPI {
	var cache *profilecache.Cache
	if in.redis != nil {
		cache = profilecache.NewCache(in.redis)
	}

	return accountAPI{
		Client:   api,
		profiles: profilecache.NewProfiles(api, sessions, cache, profilecache.DefaultTTL, log),
	}
}

func newSubscriptionStore(in *infra, log *slog.Logger) notify.SubscriptionStore {
	if in.redis != nil {
		return notify.NewRedisStore(in.redis, log)
	}
	return notify.NewMemoryStore()
}

func newChatRepository(in *infra, log *slog.Logger) repository.ChatRepository {
	if in.db != nil {
		return repository.NewChatRepository(in.db, log)
	}
	return repository.NewMemoryChatRepository()
}

func newIdempotencyManager(ctx context.Context, in *infra, log *slog.Logger) idempotency.Manager {
	if in.redis != nil {
		go idempotency.NewCleaner(in.redis, log, idempotencyCleanupInterval, 0).Run(ctx)
		return idempotency.NewManager(idempotency.NewRedisStore(in.redis, log), log)
	}

	store := idempotency.NewMemoryStore()
	go func() {
		ticker := time.NewTicker(idempotencyCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.Cleanup()
			}
		}
	}()
	return idempotency.NewManager(store, log)
}

// startJobs runs the asynq worker and scheduler and returns the producer side.
func startJobs(
	cfg *config.Config,
	in *infra,
	relay *notify.Relay,
	sessions *session.Service,
	cleaner *state.Cleaner,
	log *slog.Logger,
	shutdown *lifecycle.Shutdown,
) (jobs.Manager, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	manager := jobs.NewManager(redisOpt, log)

	worker := jobs.NewWorker(redisOpt, cfg.Jobs.Concurrency, log)
	worker.RegisterHandler(jobs.TaskTypeDepositNotify, jobhandlers.NewDepositHandler(relay, log))
	worker.RegisterHandler(jobs.TaskTypeSessionSweep, jobhandlers.NewSessionSweepHandler(sessions, cleaner, log))

	scheduler := jobs.NewScheduler(redisOpt, cfg.Jobs.SweepCron, log)
	if err := scheduler.RegisterTasks(); err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("register scheduled tasks: %w", err)
	}
	scheduler.Run()

	go func() {
		if err := worker.Run(); err != nil {
			log.Error("jobs worker stopped", slog.Any("error", err))
		}
	}()

	shutdown.Register(lifecycle.StageWorkers, "jobs", func(context.Context) error {
		scheduler.Shutdown()
		worker.Shutdown()
		return manager.Close()
	})

	log.Info("background jobs started", slog.Int("concurrency", cfg.Jobs.Concurrency))
	return manager, nil
}
