package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/payments-bot/internal/bot"
	"github.com/Proton-105/payments-bot/internal/conversation"
	apperrors "github.com/Proton-105/payments-bot/internal/errors"
	"github.com/Proton-105/payments-bot/internal/health"
	"github.com/Proton-105/payments-bot/internal/i18n"
	"github.com/Proton-105/payments-bot/internal/lifecycle"
	"github.com/Proton-105/payments-bot/internal/middleware"
	"github.com/Proton-105/payments-bot/internal/notify"
	"github.com/Proton-105/payments-bot/internal/payments"
	"github.com/Proton-105/payments-bot/internal/ratelimit"
	"github.com/Proton-105/payments-bot/internal/session"
	"github.com/Proton-105/payments-bot/internal/state"
	"github.com/Proton-105/payments-bot/pkg/config"
	"github.com/Proton-105/payments-bot/pkg/graceful"
	"github.com/Proton-105/payments-bot/pkg/logger"
	"github.com/Proton-105/payments-bot/pkg/metrics"
)

const (
	shutdownGrace   = 30 * time.Second
	expiredFlowText = "⌛ Your pending operation timed out and was cancelled. Use /start to begin again."
)

func main() {
	cfg, v, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)
	config.WatchLogLevel(v, func(level string) {
		logger.SetLevel(level)
		log.Info("log level changed", slog.String("level", level))
	})

	if err := run(cfg, log); err != nil {
		log.Error("payments bot stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting payments bot",
		slog.String("env", cfg.AppEnv),
		slog.String("mode", cfg.Bot.Mode),
		slog.String("http_port", cfg.Server.Port),
	)

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: sentryEnvironment(cfg)}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)
	errHandler.OnError(metrics.RecordError)

	shutdown := lifecycle.NewShutdown(log)
	probes := lifecycle.NewProbes(log)
	checker := health.NewChecker(log)

	backends, err := openInfra(ctx, cfg, log, shutdown, checker)
	if err != nil {
		return err
	}

	store, err := newSessionStore(cfg, backends, log)
	if err != nil {
		return err
	}
	sessions := session.NewService(store, nil, cfg.Session.TTL, log)
	api := payments.NewClient(cfg.Payments, sessions, log)
	sessions.SetAPI(api)
	checker.AddCheck("sessions", health.CheckFunc(sessions.Check))
	checker.AddCheck("payments_api", health.CheckFunc(api.Ping))

	storage, locker := newStateBackend(cfg, backends, log)
	registry := state.NewRegistry(storage, log)

	engine := conversation.NewEngine(registry, locker, sessions, api, errHandler, log, conversation.Options{
		MaxAmount:         cfg.Limits.MaxTransfer(),
		MaxBulkRecipients: cfg.Limits.MaxBulkRecipients,
		LockTimeout:       cfg.State.LockTimeout,
	})

	limiter := newLimiter(ctx, backends, log)

	relay := notify.NewRelay(
		sessions,
		newSubscriptionStore(backends, log),
		ratelimit.NewThrottle(limiter, "notify", cfg.Notifications.ThrottleWindow, log),
		log,
	)
	engine.SetSubscriber(relay)

	translations, err := i18n.Load(cfg.I18n.DefaultLang)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}

	var rateLimitMw *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		rateLimitMw = middleware.NewRateLimitMiddleware(limiter, ratelimit.NewRules(cfg.RateLimit), translations, log)
	}

	tgBot, err := bot.New(*cfg, log, bot.Deps{
		Engine:      engine,
		Sessions:    sessions,
		Account:     newAccountAPI(api, sessions, backends, log),
		Relay:       relay,
		Chats:       newChatRepository(backends, log),
		I18n:        translations,
		Errors:      errHandler,
		Idempotency: newIdempotencyManager(ctx, backends, log),
		RateLimit:   rateLimitMw,
	})
	if err != nil {
		return err
	}
	relay.SetSender(tgBot)
	checker.AddCheck("telegram", health.NewTelegramChecker(tgBot.Telebot()))

	cleaner := state.NewCleaner(registry, log, cfg.State.IdleTTL, cfg.State.CleanupInterval)
	cleaner.UseLocker(locker)
	cleaner.OnExpire(func(ctx context.Context, chatID int64, abandoned state.State) {
		if err := tgBot.Notify(ctx, chatID, expiredFlowText); err != nil {
			log.Warn("failed to notify expired flow", slog.Int64("chat_id", chatID), slog.String("state", string(abandoned)), slog.Any("error", err))
		}
	})
	go cleaner.Run(ctx)
	go metrics.NewStateCollector(registry).Run(ctx)

	var queue notify.Enqueuer
	if cfg.Jobs.Enabled && backends.redis != nil {
		manager, err := startJobs(cfg, backends, relay, sessions, cleaner, log, shutdown)
		if err != nil {
			return err
		}
		queue = manager
	}

	if cfg.Notifications.Enabled {
		startDepositFeed(ctx, cfg, api, relay, log, shutdown)
	}

	startHTTP(ctx, cfg, log, checker, probes, relay, queue, shutdown)

	shutdown.Register(lifecycle.StageIntake, "telegram", func(context.Context) error {
		tgBot.Stop()
		return nil
	})
	go tgBot.Start()

	probes.MarkReady()
	<-ctx.Done()
	probes.MarkStopping()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := shutdown.Execute(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("payments bot stopped")
	return nil
}

func startDepositFeed(ctx context.Context, cfg *config.Config, api *payments.Client, relay *notify.Relay, log *slog.Logger, shutdown *lifecycle.Shutdown) {
	feedCtx, cancelFeed := context.WithCancel(ctx)

	pusher := notify.NewPusherSubscriber(cfg.Notifications, api, func(ctx context.Context, d notify.Deposit) {
		if _, err := relay.HandleDeposit(ctx, d); err != nil {
			log.Error("failed to relay deposit", slog.String("organization_id", d.OrganizationID), slog.Any("error", err))
		}
	}, log)
	relay.SetChannels(pusher)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pusher.Run(feedCtx)
	}()

	if restored, err := relay.Restore(ctx); err != nil {
		log.Warn("failed to restore deposit subscriptions", slog.Any("error", err))
	} else {
		log.Info("restored deposit subscriptions", slog.Int("count", restored))
	}

	shutdown.Register(lifecycle.StageIntake, "deposit_feed", func(ctx context.Context) error {
		cancelFeed()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func startHTTP(
	ctx context.Context,
	cfg *config.Config,
	log *slog.Logger,
	checker *health.Checker,
	probes *lifecycle.Probes,
	relay *notify.Relay,
	queue notify.Enqueuer,
	shutdown *lifecycle.Shutdown,
) {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(logger.Middleware)
	r.Use(middleware.RequestLogger(log))

	health.NewHandler(checker, probes, log).Mount(r)
	r.Handle("/metrics", promhttp.Handler())

	if cfg.Notifications.Enabled && cfg.Notifications.WebhookPath != "" {
		notify.NewWebhookHandler(relay, queue, cfg.Notifications.WebhookSecret, log).Mount(r, cfg.Notifications.WebhookPath)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	httpCtx, cancelHTTP := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- graceful.NewServer(log, srv, cfg.Server.ShutdownTimeout).ListenAndServe(httpCtx)
	}()

	shutdown.Register(lifecycle.StageIntake, "http", func(ctx context.Context) error {
		cancelHTTP()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func sentryEnvironment(cfg *config.Config) string {
	if cfg.Sentry.Environment != "" {
		return cfg.Sentry.Environment
	}
	return cfg.AppEnv
}
